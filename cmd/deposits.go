package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aqlanhadi/ledgr/extractor"
	"github.com/spf13/cobra"
)

var depositsAsOf string

var depositsCmd = &cobra.Command{
	Use:   "deposits",
	Short: "Extract fixed deposit records from a PDF",
	Long: `Reads the text of a fixed deposit advice or statement PDF and prints the
fixed deposits found in it. Status is inferred from the maturity date when
the document does not state it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		opts := extractor.Options{}
		if depositsAsOf != "" {
			asOf, err := time.Parse("2006-01-02", depositsAsOf)
			if err != nil {
				return fmt.Errorf("invalid --as-of date: %w", err)
			}
			opts.Now = asOf
		}

		result, err := extractor.ProcessFile(path, opts)
		if err != nil {
			return err
		}
		if result.Kind != extractor.KindFixedDeposit {
			return fmt.Errorf("%s is not a PDF", path)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result.FixedDeposits)
	},
}

func init() {
	rootCmd.AddCommand(depositsCmd)
	depositsCmd.Flags().StringP("file", "f", "", "PDF file to scan (required)")
	depositsCmd.Flags().StringVar(&depositsAsOf, "as-of", "", "Date (YYYY-MM-DD) used to infer status, default today")
	depositsCmd.MarkFlagRequired("file")
}

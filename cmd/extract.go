package cmd

import (
	"io"

	"github.com/aqlanhadi/ledgr/extractor"
	"github.com/aqlanhadi/ledgr/ledger"
	"github.com/spf13/cobra"
)

type extractFlags struct {
	mapping  string
	group    string
	rowsOnly bool
}

var extractOpts extractFlags

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extracts statement(s) to JSON",
	Long: `Extracts a statement export or a directory of them and prints JSON.

Tabular files are mapped with the suggested column mapping unless --mapping
is given. PDF files are scanned for fixed deposit records.

Examples:
  ledgr extract -f statement.csv
  ledgr extract -f exports/ --group narration
  ledgr extract -f statement.xlsx --mapping "txn date=date,details=narration,amount=amount"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("file")
		return runExtract(cmd.OutOrStdout(), target, extractOpts)
	},
}

func runExtract(w io.Writer, target string, flags extractFlags) error {
	mapping, err := parseMapping(flags.mapping)
	if err != nil {
		return err
	}
	mode, err := ledger.ParseGroupMode(flags.group)
	if err != nil {
		return err
	}
	return extractor.ExecuteAgainstPath(
		target,
		extractor.Options{Mapping: mapping},
		extractor.OutputOptions{RowsOnly: flags.rowsOnly, Group: mode},
		w,
	)
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringP("file", "f", ".", "File or folder to extract")
	extractCmd.Flags().StringVar(&extractOpts.mapping, "mapping", "", "Column mapping as column=field pairs, comma separated")
	extractCmd.Flags().StringVar(&extractOpts.group, "group", "none", "Group transactions: none, date or narration")
	extractCmd.Flags().BoolVar(&extractOpts.rowsOnly, "rows-only", false, "Print parsed rows without mapping them")
}

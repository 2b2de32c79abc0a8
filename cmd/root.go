package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/aqlanhadi/ledgr/extractor/tabular"
	"github.com/aqlanhadi/ledgr/logger"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Embedded default configuration (same keys as .ledgr.yaml)
const defaultConfigYAML = `
tabular:
  header:
    scan_limit: 30
    fallback_skip: 22
  inference:
    sample_rows: 10
grouping:
  narration_threshold: 0.3
  max_narration_batch: 500
fixed_deposit:
  section_window: 500
  context_before: 200
  context_after: 500
  min_fallback_amount: 1000
server:
  port: "8080"
database:
  url: ""
`

var (
	cfgFile string
	verbose bool
	rootCmd = &cobra.Command{
		Use:   "ledgr [file]",
		Short: "Turn bank statement exports into a deduplicated ledger",
		Long: `ledgr reads CSV, TSV and XLSX statement exports and fixed deposit PDFs,
normalizes them into canonical transactions and stores them without duplicates.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runExtract(cmd.OutOrStdout(), args[0], extractFlags{group: "none"})
			}
			return cmd.Help()
		},
		SilenceUsage: true,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default is ./.ledgr.yaml or ~/.ledgr.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func initLogging() {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = logger.New(verbose)
}

func initConfig() {
	// defaults first, so a partial config file only overrides what it names
	viper.SetConfigType("yaml")
	if err := viper.ReadConfig(bytes.NewBufferString(defaultConfigYAML)); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading embedded configuration: %v\n", err)
		os.Exit(1)
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory and home directory
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Add config paths in order of priority
		viper.AddConfigPath(".")  // First check current directory
		viper.AddConfigPath(home) // Then check home directory
		viper.SetConfigName(".ledgr")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

// bindDatabaseURL points database.url at the --db-url flag of the command
// being run; several commands define the flag.
func bindDatabaseURL(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlag("database.url", cmd.Flags().Lookup("db-url"))
}

// parseMapping reads "column=field,column=field". Columns are normalized
// like parsed headers so the flag can use the header text as printed.
func parseMapping(raw string) (*tabular.ColumnMapping, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	m := tabular.NewColumnMapping()
	for _, pair := range strings.Split(raw, ",") {
		col, field, ok := strings.Cut(pair, "=")
		col = tabular.NormalizeHeader(col)
		field = strings.TrimSpace(field)
		if !ok || col == "" || field == "" {
			return nil, fmt.Errorf("invalid mapping entry %q, want column=field", pair)
		}
		m.Set(col, tabular.Field(field))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

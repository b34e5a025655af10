package main

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/indemnizatii/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long:  "Prints the configuration after config.yaml, INDEMNIZATII_* environment variables and defaults are merged. Secrets are masked.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func writeConfig(w io.Writer, c *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Redacted()); err != nil {
		return eris.Wrap(err, "config: encode yaml")
	}
	return eris.Wrap(enc.Close(), "config: encode yaml")
}

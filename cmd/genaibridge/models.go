package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the configured model aliases",
	Long:  `Print the alias table that maps OpenAI model names onto POSTECH endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		reg, err := buildRegistry(cfg)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ALIAS\tENDPOINT\tMODEL\tCAPABILITIES\tDEFAULT")
		for _, m := range reg.List() {
			def := ""
			if m.Alias == reg.DefaultAlias() {
				def = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Alias, m.VendorEndpoint, m.VendorModelID, m.Capabilities, def)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

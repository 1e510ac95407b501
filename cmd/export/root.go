package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "export",
		Short: "Export discharge documents from a source EHR into the destination FHIR store",
		Long: `Runs export jobs against the systems configured through the environment
(the same variables the HTTP service reads).

Flags may also be given as EXPORT_CLI_* environment variables, for example
EXPORT_CLI_TENANT=hospital-a.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("pretty", true, "Indent the printed JSON")
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))

	viper.SetEnvPrefix("export_cli")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(newRunCmd())
	return rootCmd
}

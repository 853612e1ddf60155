package main

import (
	"fmt"
	"os"

	"github.com/felipepmaragno/genai-bridge/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	envFile  string
	logLevel string
	addr     string
)

var rootCmd = &cobra.Command{
	Use:   "genaibridge",
	Short: "OpenAI-compatible proxy for the POSTECH GenAI agent API",
	Long: `genaibridge accepts OpenAI Chat Completions requests, forwards them to the
POSTECH GenAI agent endpoints and translates the replies back, including
server-sent-event streaming and file attachments served from this proxy.

Running it without a subcommand starts the server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to read (default ./.env when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "listen address, overrides ADDR")
}

// loadConfig reads configuration, letting explicitly set flags win over the
// environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.Options{
		EnvFile:   envFile,
		Overrides: flagOverrides(cmd),
	})
}

func flagOverrides(cmd *cobra.Command) map[string]string {
	overrides := make(map[string]string)
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		overrides["LOG_LEVEL"] = logLevel
	}
	if flags.Changed("addr") {
		overrides["ADDR"] = addr
	}
	return overrides
}

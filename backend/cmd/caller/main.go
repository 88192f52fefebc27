// Caller is a headless call participant. It joins a room through the relay
// with synthetic media and can be driven from stdin.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagLogLevel string

	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
)

var rootCmd = &cobra.Command{
	Use:   "caller",
	Short: "Headless participant of a two-party call",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := zerolog.ParseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		logger = logger.Level(lvl)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagServer, "server", "s", "ws://localhost:8888/signal",
		"relay signaling endpoint")
	rootCmd.PersistentFlags().StringVarP(&flagLogLevel, "log-level", "l", "info", "log level")

	rootCmd.AddCommand(joinCmd, hangupCmd)
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("caller failed")
		os.Exit(1)
	}
}

package cmd

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/cli/internal/config"
	"github.com/BioHazard786/Huddle/cli/internal/ui"
	"github.com/BioHazard786/Huddle/cli/internal/version"
	"github.com/BioHazard786/Huddle/internal/logging"
)

var (
	flagServer   string
	flagInsecure bool
	flagLogFile  string
	flagLogLevel string
)

// logger is configured by the root command before any subcommand runs.
var logger = zerolog.Nop()

// logFile is kept open for the lifetime of the process.
var logFile *os.File

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Room-based peer-to-peer calls and chat from the terminal",
	Long: `Huddle joins the same rooms as the Huddle web app. Everyone in a room gets
a direct WebRTC link to everyone else, and the room has a shared chat.

Examples:
  huddle create
  huddle join R7X2KQ9P --name Alice
  huddle who R7X2KQ9P`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd.Name() == "join")
	},
}

// setupLogging sends logs to --log-file when given. Otherwise logs go to
// stderr, or nowhere while a full-screen view owns the terminal.
func setupLogging(interactive bool) error {
	var out io.Writer = os.Stderr
	pretty := true

	switch {
	case flagLogFile != "":
		f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		logFile = f
		out = f
		pretty = false
	case interactive:
		out = io.Discard
	}

	logger = logging.Init(logging.Options{
		Level:        flagLogLevel,
		DefaultLevel: zerolog.ErrorLevel,
		Pretty:       pretty,
		Output:       out,
	})
	return nil
}

func loadConfig(opts config.Options) (*config.Config, error) {
	opts.Server = flagServer
	opts.Insecure = flagInsecure
	return config.Load(opts)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Signaling server host or URL (env HUDDLE_SERVER)")
	rootCmd.PersistentFlags().BoolVar(&flagInsecure, "insecure", false, "Use ws:// and http:// instead of TLS")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Write logs to this file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
}

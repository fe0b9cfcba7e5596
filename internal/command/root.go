package command

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/mindconnect/internal/config"
	"github.com/BioHazard786/mindconnect/internal/logging"
	"github.com/BioHazard786/mindconnect/internal/ui"
	"github.com/BioHazard786/mindconnect/internal/version"
)

// Flags shared by every subcommand.
var (
	flagConfig    string
	flagLogLevel  string
	flagServerURL string
	flagUser      string
)

var rootCmd = &cobra.Command{
	Use:   "mindconnect",
	Short: "Consultation relay for WebRTC signaling and room chat",
	Long: `MindConnect relays WebRTC offers, answers and ICE candidates between the
members of a consultation room, and stores and broadcasts the room's chat.

Run "mindconnect serve" for the relay itself. The other commands are clients:
"join" opens an interactive chat and a direct data channel to the other
participant, while "history", "sessions", "ice" and "demo" talk to the REST API.`,
	Version: version.Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "TOML config file (env CONFIG_FILE)")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	pf.StringVarP(&flagServerURL, "server", "s", "", "relay websocket URL (env SERVER_URL)")
	pf.StringVarP(&flagUser, "user", "u", "", "your user id, sent as senderId (env USER_ID)")

	rootCmd.AddCommand(serveCmd, joinCmd, historyCmd, sessionsCmd, iceCmd, demoCmd)
}

// Execute runs the command tree and exits non-zero on failure. SIGINT and
// SIGTERM cancel the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

// loadConfig merges the shared flags into opts, loads the config and
// reinstalls the default logger from it. def is the level used when none
// is configured.
func loadConfig(opts config.Options, def slog.Level) (*config.Config, error) {
	opts.ConfigPath = flagConfig
	opts.LogLevel = flagLogLevel
	opts.ServerURL = flagServerURL
	opts.UserID = flagUser

	cfg, err := config.Load(opts)
	if err != nil {
		return nil, NewError("load config", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, def)
	return cfg, nil
}

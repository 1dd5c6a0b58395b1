package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/park285/nochess-client/internal/config"
	"github.com/park285/nochess-client/internal/obslog"
	"github.com/park285/nochess-client/pkg/chessdto"
	"github.com/spf13/cobra"
)

var (
	cfg *config.AppConfig

	flagServer    string
	flagTransport string
	flagStreamURL string
	flagRedisURL  string
	flagMode      string
	flagTimeout   time.Duration
	flagLogLevel  string

	rootCmd = &cobra.Command{
		Use:           "chessclient",
		Short:         "Play against a NoChess server from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}
)

func main() {
	defer obslog.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chessclient: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", "", "authority base URL (NOCHESS_SERVER_URL)")
	pf.StringVar(&flagTransport, "transport", "", "live evaluation transport: ws, redis or none (NOCHESS_STREAM_TRANSPORT)")
	pf.StringVar(&flagStreamURL, "stream-url", "", "WebSocket URL template with {session} (NOCHESS_STREAM_URL)")
	pf.StringVar(&flagRedisURL, "redis-url", "", "Redis URL for the redis transport (REDIS_URL)")
	pf.StringVar(&flagMode, "mode", "", "difficulty: beginner, intermediate or advanced (NOCHESS_MODE)")
	pf.DurationVar(&flagTimeout, "timeout", 0, "per-request timeout (NOCHESS_REQUEST_TIMEOUT_MS)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level (LOG_LEVEL)")

	rootCmd.AddCommand(playCmd, probeCmd, snapshotCmd)
}

// loadConfig reads the environment, applies the flags that were set and
// validates the result.
func loadConfig(cmd *cobra.Command) error {
	loaded, err := config.LoadEnv()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		loaded.ServerURL = strings.TrimRight(strings.TrimSpace(flagServer), "/")
		if !flags.Changed("stream-url") && os.Getenv("NOCHESS_STREAM_URL") == "" {
			loaded.StreamURL = ""
		}
	}
	if flags.Changed("transport") {
		loaded.StreamTransport = strings.ToLower(strings.TrimSpace(flagTransport))
	}
	if flags.Changed("stream-url") {
		loaded.StreamURL = strings.TrimSpace(flagStreamURL)
	}
	if flags.Changed("redis-url") {
		loaded.RedisURL = strings.TrimSpace(flagRedisURL)
	}
	if flags.Changed("mode") {
		mode, ok := chessdto.ParseMode(flagMode)
		if !ok {
			return fmt.Errorf("--mode %q is not one of beginner, intermediate, advanced", flagMode)
		}
		loaded.Mode = mode
	}
	if flags.Changed("timeout") && flagTimeout > 0 {
		loaded.RequestTimeout = flagTimeout
	}
	if flags.Changed("log-level") {
		loaded.Log.Level = flagLogLevel
	}
	if err := loaded.Finalize(); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func initLogging(console bool) error {
	return obslog.Init(obslog.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Console: console && cfg.Log.Console,
		ToFile:  cfg.Log.ToFile,
		File:    cfg.Log.File,
		Caller:  cfg.Log.Caller,
	})
}

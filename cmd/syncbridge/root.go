package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/syncbridge/version"
)

var (
	cfgFile  string
	homeDir  string
	logLevel string
)

// ParseLogLevel converts a string log level to slog.Level.
// Supports: debug, info, warn, error (case-insensitive).
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", level)
	}
}

// GetLogLevel returns the configured log level, checking:
// 1. CLI flag (--log-level)
// 2. Environment variable (SYNCBRIDGE_LOG_LEVEL)
// 3. Default (info)
func GetLogLevel() slog.Level {
	level := logLevel
	if level == "" {
		level = os.Getenv("SYNCBRIDGE_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}

	parsed, err := ParseLogLevel(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using info\n", err)
		return slog.LevelInfo
	}
	return parsed
}

var rootCmd = &cobra.Command{
	Use:   "syncbridge",
	Short: "Reconciles reading progress across an audiobook server, an ebook sync service, and a read-along database",
	Long: `syncbridge keeps reading position in sync across three systems that don't
talk to each other: an audiobook server (AB), an ebook sync service (ES),
and a read-along database (RA).

Each mapping links one audiobook to one ebook. On a fixed cadence the
reconciliation engine reads all three sources, picks a winner when they
disagree, translates its position into the other two systems' coordinate
spaces via a speech-to-text transcript and a linearized ebook index, and
writes the result back out.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.syncbridge/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "syncbridge home directory (default: ~/.syncbridge)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn, error (default: info, env: SYNCBRIDGE_LOG_LEVEL)",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(mappingCmd)
}

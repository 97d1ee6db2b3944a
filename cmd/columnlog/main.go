// Command columnlog compresses JSON logs into columnar archives, searches
// them and extracts them back to JSON.
//
// Logging:
//   - The base logger writes text to stderr and is created per invocation
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"columnlog/internal/ingest"
	"columnlog/internal/logging"
	"columnlog/internal/query"
	"columnlog/internal/search"
)

var version = "dev"

// logLevelEnv overrides the --log-level default.
const logLevelEnv = "COLUMNLOG_LOG_LEVEL"

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	// Set by PersistentPreRunE; nil until flags are parsed.
	var logger *slog.Logger

	rootCmd := &cobra.Command{
		Use:           "columnlog",
		Short:         "Columnar archives for structured logs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(cmd)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}

	defaultLevel := "info"
	if v := os.Getenv(logLevelEnv); v != "" {
		defaultLevel = v
	}
	rootCmd.PersistentFlags().String("log-level", defaultLevel, "minimum log level: debug, info, warn or error (env "+logLevelEnv+")")
	rootCmd.PersistentFlags().StringSlice("component-level", nil, "per-component log level as component=level, repeatable")

	compressCmd := &cobra.Command{
		Use:   "compress <archives-dir> <paths...>",
		Short: "Compress newline-delimited JSON files into archives",
		Long: "Compress newline-delimited JSON files into archives.\n\n" +
			"Paths are doublestar globs; a directory includes every file below it.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tsKey, _ := cmd.Flags().GetString("timestamp-key")
			level, _ := cmd.Flags().GetInt("compression-level")
			target, _ := cmd.Flags().GetInt64("target-encoded-size")

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			c := ingest.NewCompressor(ingest.Options{
				ArchivesDir:       args[0],
				TimestampKey:      tsKey,
				CompressionLevel:  level,
				TargetEncodedSize: target,
			}, logger)
			metas, err := c.Compress(ctx, args[1:])
			if err != nil {
				return err
			}
			for _, m := range metas {
				logger.Info("archive written", "id", m.ID, "records", m.Records,
					"uncompressed", m.UncompressedSize, "schemas", len(m.Tables))
			}
			return nil
		},
	}
	compressCmd.Flags().String("timestamp-key", "", "dotted path of the field to index for time range pruning")
	compressCmd.Flags().Int("compression-level", 3, "zstd compression level (1-22)")
	compressCmd.Flags().Int64("target-encoded-size", ingest.DefaultTargetEncodedSize, "start a new archive once the encoded size reaches this many bytes")

	extractCmd := &cobra.Command{
		Use:   "extract <archives-dir> <out-dir>",
		Short: "Reconstruct every archive as a JSON lines file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			_, err := search.NewEngine(args[0], logger).Extract(ctx, args[1])
			return err
		},
	}

	searchCmd := &cobra.Command{
		Use:   "search <archives-dir> <query>",
		Short: "Print the records matching a query",
		Long: "Print the records matching a Kibana-style query, one JSON object per line.\n\n" +
			"Examples:\n" +
			"  columnlog search ./archives 'level: error AND ctx.host: web*'\n" +
			"  columnlog search ./archives 'ts > date(\"2024-01-15T10:00:00Z\")'",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			stats, err := search.NewEngine(args[0], logger).Search(ctx, args[1], os.Stdout)
			if err != nil {
				if query.IsNoMatch(err) {
					return fmt.Errorf("no results: %w", err)
				}
				return err
			}
			logger.Debug("search stats", "matches", stats.Matches, "scanned", stats.RecordsScanned)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(compressCmd, extractCmd, searchCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		if logger == nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		} else {
			logger.Error("command failed", "error", err)
		}
		os.Exit(1)
	}
}

// newLogger builds the stderr logger from the --log-level and
// --component-level flags.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelFlag, _ := cmd.Flags().GetString("log-level")
	level, err := logging.ParseLevel(levelFlag)
	if err != nil {
		return nil, err
	}

	// Allow all levels; filtering is done by the component filter.
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filter := logging.NewComponentFilterHandler(base, level)

	overrides, _ := cmd.Flags().GetStringSlice("component-level")
	for _, o := range overrides {
		name, lvl, ok := strings.Cut(o, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --component-level %q: want component=level", o)
		}
		l, err := logging.ParseLevel(lvl)
		if err != nil {
			return nil, err
		}
		filter.SetLevel(name, l)
	}
	return slog.New(filter), nil
}

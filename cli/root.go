package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"imagedex/index"
	"imagedex/logging"
)

const (
	envDBPath     = "IMAGEDEX_DB"
	defaultDBPath = "imagedex.db"
)

var rootCmd = &cobra.Command{
	Use:   "imagedex",
	Short: "Index a photo collection and search it by visual similarity",
	Long: `Imagedex walks directories of photos (RAW formats included), stores a
perceptual fingerprint of every image in a local SQLite index, and finds
visually similar images with a hash prefilter followed by structural
verification.`,
	SilenceUsage: true,
}

// Execute runs the command tree under ctx. Cancelling ctx (SIGINT/SIGTERM in
// main) aborts a running scan or search between files.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("db", "", "path to the index database (defaults to $"+envDBPath+" or "+defaultDBPath+")")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().String("logfile", "", "append log output to this file as well as stderr")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

func dbPath(cmd *cobra.Command) string {
	if v := mustGetString(cmd, "db"); v != "" {
		return v
	}
	if v := os.Getenv(envDBPath); v != "" {
		return v
	}
	return defaultDBPath
}

// setup builds the logger and opens the index store from the persistent
// flags. The returned cleanup closes both.
func setup(cmd *cobra.Command) (*slog.Logger, *index.Store, func(), error) {
	logger, closeLog, err := logging.New(logging.Options{
		Verbose: mustGetBool(cmd, "verbose"),
		File:    mustGetString(cmd, "logfile"),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := index.Open(dbPath(cmd))
	if err != nil {
		closeLog()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing index", "error", err)
		}
		closeLog()
	}
	return logger, store, cleanup, nil
}

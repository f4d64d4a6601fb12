package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"imagedex/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan <directory>",
	Short: "Index every supported image under a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().String("prefix", "", "source prefix recorded with every image")
	scanCmd.Flags().Bool("force", false, "reprocess files even when already indexed and unchanged")
	scanCmd.Flags().Int("workers", 0, "concurrent workers (0 = auto)")
	scanCmd.Flags().Bool("no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	logger, store, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	prefix := mustGetString(cmd, "prefix")
	report, runErr := scan.Run(cmd.Context(), scan.Options{
		Root:     args[0],
		Prefix:   prefix,
		Force:    mustGetBool(cmd, "force"),
		Workers:  mustGetInt(cmd, "workers"),
		Store:    store,
		Logger:   logger,
		Progress: !mustGetBool(cmd, "no-progress"),
	})
	if report != nil {
		printReport(cmd, report)
		if stats, err := store.Stats(cmd.Context(), prefix); err == nil {
			cmd.Printf("Index now holds %d images (%d distinct average hashes)\n",
				stats.TotalImages, stats.UniqueHashes)
		}
	}
	return runErr
}

func printReport(cmd *cobra.Command, report *scan.Report) {
	cmd.Printf("Scanned %d files in %s: %d indexed, %d updated, %d skipped, %d failed\n",
		report.Seen, report.Elapsed.Round(timeRounding),
		report.Indexed, report.Updated, report.Skipped, report.Failed)
	for _, f := range report.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "  failed: %s\n", f)
	}
}

package cli

import (
	"time"

	"github.com/spf13/cobra"

	"imagedex/search"
)

const timeRounding = 10 * time.Millisecond

var searchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Find indexed images visually similar to the given one",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().Float64("threshold", 0.8, "minimum similarity score in [0, 1]")
	searchCmd.Flags().String("prefix", "", "restrict candidates to one source prefix")
	searchCmd.Flags().Int("limit", 5, "maximum matches to print (0 = all)")
	searchCmd.Flags().Int("workers", 0, "concurrent verification workers (0 = auto)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	logger, store, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	matches, err := search.Run(cmd.Context(), search.Options{
		Query:     args[0],
		Threshold: mustGetFloat64(cmd, "threshold"),
		Prefix:    mustGetString(cmd, "prefix"),
		Store:     store,
		Logger:    logger,
		Workers:   mustGetInt(cmd, "workers"),
	})
	if err != nil {
		return err
	}

	if len(matches) == 0 {
		cmd.Println("No matches")
		return nil
	}
	limit := mustGetInt(cmd, "limit")
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	for _, m := range matches {
		cmd.Printf("%.4f  %s\n", m.Score, m.Path)
	}
	return nil
}

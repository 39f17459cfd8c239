package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go-ytqueue/internal/history"
	"go-ytqueue/internal/models"
)

var (
	historySearchLimit int
	historyVerifyQuiet bool
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historySearchCmd)
	historyCmd.AddCommand(historyVerifyCmd)
	historyCmd.AddCommand(historyForgetCmd)

	historySearchCmd.Flags().IntVarP(&historySearchLimit, "limit", "n", 20, "Maximum number of results")
	historyVerifyCmd.Flags().BoolVar(&historyVerifyQuiet, "problems-only", false, "Only print files that failed verification")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect completed downloads",
}

// withHistory opens the recorder for the duration of fn.
func withHistory(fn func(rec *history.Recorder) error) error {
	rec, err := history.Open(globalConfig.History)
	if err != nil {
		return err
	}
	defer rec.Close()
	return fn(rec)
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List completed downloads, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(rec *history.Recorder) error {
			entries, err := rec.List()
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), entries)
		})
	},
}

var historySearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Full-text search over titles and authors",
	Long: `Searches the history index. Supports bleve query string syntax, e.g.
  ytqueue history search lofi
  ytqueue history search 'author:astley +kind:audio'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(rec *history.Recorder) error {
			entries, err := rec.Search(strings.Join(args, " "), historySearchLimit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), entries)
		})
	},
}

var historyVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check recorded files still exist and match their BLAKE3 hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(rec *history.Recorder) error {
			results, err := rec.Verify()
			if err != nil {
				return err
			}
			return printVerify(cmd.OutOrStdout(), results, historyVerifyQuiet)
		})
	},
}

var historyForgetCmd = &cobra.Command{
	Use:   "forget VIDEO_ID...",
	Short: "Remove entries from the history",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(rec *history.Recorder) error {
			for _, id := range args {
				if err := rec.Forget(id); err != nil {
					return fmt.Errorf("forgetting %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			}
			return nil
		})
	},
}

func printHistory(out io.Writer, entries []models.HistoryEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No downloads recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPLETED\tID\tTITLE\tAUTHOR\tFORMAT\tPATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s %s\t%s\n",
			e.CompletedAt.Local().Format("2006-01-02 15:04"), e.VideoID, truncate(e.Title, 50), e.Author,
			e.Kind, e.Quality, e.Container, e.OutputPath)
	}
	return tw.Flush()
}

func printVerify(out io.Writer, results []history.VerifyResult, problemsOnly bool) error {
	var problems int
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, res := range results {
		var status string
		problem := false
		switch res.Status {
		case history.VerifyOK:
			status = successText(res.Status)
		case history.VerifyUnhashed, history.VerifyNoPath:
			status = cancelText(res.Status)
		default:
			problem = true
			status = failureText(res.Status)
		}
		if problem {
			problems++
		} else if problemsOnly {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", status, res.Entry.VideoID, res.Entry.OutputPath)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Verified %d files, %d problems.\n", len(results), problems)
	if problems > 0 {
		return fmt.Errorf("%d recorded files are missing or changed", problems)
	}
	return nil
}

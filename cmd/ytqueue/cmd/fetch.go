package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go-ytqueue/internal/fetcher"
)

var fetchJSONFlag bool

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch URL...",
	Short: "Print the metadata of videos and playlists without downloading",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		eng, err := newEngine(ctx, globalConfig)
		if err != nil {
			return err
		}
		results := newFetcher(eng, globalConfig).FetchAll(ctx, args)
		if fetchJSONFlag {
			return printFetchJSON(cmd.OutOrStdout(), results)
		}
		return printFetchTable(cmd.OutOrStdout(), results)
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().BoolVar(&fetchJSONFlag, "json", false, "Print records as JSON")
	addFetchFlags(fetchCmd)
}

func printFetchTable(out io.Writer, results []fetcher.FetchResult) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tDURATION")
	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(tw, "-\t%s\t\t\n", failureText(res.Err.Error()))
			continue
		}
		for _, r := range res.Records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, truncate(r.Title, 60), r.Author, r.Duration())
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d URLs could not be fetched", failed, len(results))
	}
	return nil
}

type fetchOutput struct {
	URL      string      `json:"url"`
	Error    string      `json:"error,omitempty"`
	Records  interface{} `json:"records,omitempty"`
	Playlist bool        `json:"playlist"`
}

func printFetchJSON(out io.Writer, results []fetcher.FetchResult) error {
	docs := make([]fetchOutput, 0, len(results))
	for _, res := range results {
		doc := fetchOutput{URL: res.URL, Playlist: res.Playlist, Records: res.Records}
		if res.Err != nil {
			doc.Error = res.Err.Error()
			doc.Records = nil
		}
		docs = append(docs, doc)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(docs)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"policychat/internal/model"

	"github.com/spf13/cobra"
)

var (
	forceReindex bool
	searchTopK   int
	askUserID    int64
	askRAG       bool
	askStream    bool

	reindexCmd = &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the policy index when it is out of step with the policy table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cli.Syncer.Sync(cmd.Context(), forceReindex)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	searchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Show the policies the index retrieves for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := cli.Index.Search(cmd.Context(), strings.Join(args, " "), searchTopK)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(w, "No policies found.")
				return nil
			}
			for i, p := range results {
				fmt.Fprintf(w, "%2d. [%.3f] %s (%s)\n", i+1, p.SimilarityScore, p.Title, p.Organization)
			}
			return nil
		},
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the consultation pipeline a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			w := cmd.OutOrStdout()

			if askStream {
				cli.Chat.ChatStream(cmd.Context(), model.StreamRequest{Message: question, UserID: askUserID}, func(ev model.StreamEvent) error {
					return writeStreamEvent(w, ev)
				})
				fmt.Fprintln(w)
				return nil
			}

			multiAgent := !askRAG
			resp := cli.Chat.Chat(cmd.Context(), model.ChatRequest{Message: question, UserID: askUserID, UseMultiAgent: &multiAgent})
			fmt.Fprintln(w, resp.Answer)
			fmt.Fprintln(w)
			for _, line := range resp.ExecutionLog {
				fmt.Fprintln(w, "  -", line)
			}
			for _, e := range resp.AgentErrors {
				fmt.Fprintf(w, "  ! %s: %s\n", e.Agent, e.Error)
			}
			if !resp.Success {
				return fmt.Errorf("consultation did not produce an answer")
			}
			return nil
		},
	}
)

func init() {
	reindexCmd.Flags().BoolVar(&forceReindex, "force", false, "rebuild even when the index size matches")
	searchCmd.Flags().IntVarP(&searchTopK, "top", "k", 10, "number of policies to retrieve")
	askCmd.Flags().Int64Var(&askUserID, "user-id", 1, "user whose profile is used and updated")
	askCmd.Flags().BoolVar(&askRAG, "rag", false, "answer with a single retrieval prompt instead of the full pipeline")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream progress and answer text")
}

// writeStreamEvent renders status lines on their own line and answer text inline.
func writeStreamEvent(w io.Writer, ev model.StreamEvent) error {
	var err error
	switch ev.Type {
	case model.EventContent:
		_, err = fmt.Fprint(w, ev.Message)
	case model.EventError:
		_, err = fmt.Fprintf(w, "\n! %s\n", ev.Message)
	default:
		mark := "…"
		if ev.Complete {
			mark = "✓"
			if ev.Warning {
				mark = "!"
			}
		}
		_, err = fmt.Fprintf(w, "%s [%s] %s\n", mark, ev.Agent, ev.Message)
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

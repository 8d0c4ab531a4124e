package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/engine"
	"github.com/fyrsmithlabs/recalld/internal/utility"
)

func newFeedbackCmd() *cobra.Command {
	var episodes []string

	cmd := &cobra.Command{
		Use:   "feedback <helpful|not-helpful|mixed>",
		Short: "Record whether retrieved episodes helped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(episodes) == 0 {
				return fmt.Errorf("%w: --episodes required (ids or \"last\")", engine.ErrInvalidInput)
			}
			en, err := open()
			if err != nil {
				return err
			}
			defer en.Close()

			updated, err := en.Feedback(cmd.Context(), episodes, args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(map[string]any{"updated": updated})
			}
			if len(updated) == 0 {
				fmt.Println("no episodes updated")
				return nil
			}
			short := make([]string, len(updated))
			for i, id := range updated {
				short[i] = id[:8]
			}
			fmt.Printf("recorded %s for %s\n", args[0], strings.Join(short, ", "))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&episodes, "episodes", nil, `episode ids, or "last" for the previous retrieval`)
	return cmd
}

func newIndexCmd() *cobra.Command {
	var reindex bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Project unindexed episodes into the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			en, err := open()
			if err != nil {
				return err
			}
			defer en.Close()

			report, err := en.IndexAll(cmd.Context(), reindex)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(report)
			}
			fmt.Printf("indexed %d episode(s), %d failed, %d already current\n",
				report.Written, report.Failed, report.Skipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reindex, "reindex", false, "rebuild every projection")
	return cmd
}

func newPropagateCmd() *cobra.Command {
	var (
		temporal bool
		project  string
	)

	cmd := &cobra.Command{
		Use:   "propagate",
		Short: "Run utility maintenance: decay, value spread, temporal credit",
		RunE: func(cmd *cobra.Command, args []string) error {
			en, err := open()
			if err != nil {
				return err
			}
			defer en.Close()

			result, err := en.Propagate(cmd.Context(), engine.PropagateOptions{
				Temporal: temporal,
				Project:  project,
			})
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(result)
			}
			fmt.Printf("decayed %d, propagated %d, credited %d (total %d updates)\n",
				result.Decayed, result.Propagated, result.Credited, result.UpdatedCount)
			return nil
		},
	}

	cmd.Flags().BoolVar(&temporal, "temporal", false, "replay temporal credit assignment")
	cmd.Flags().StringVar(&project, "project", "", "restrict to one project")
	return cmd
}

func newPruneCmd() *cobra.Command {
	var (
		maxAgeDays int
		minUtility float64
		execute    bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete aged, low-utility episodes (dry run by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			en, err := open()
			if err != nil {
				return err
			}
			defer en.Close()

			report, err := en.Prune(cmd.Context(), utility.PruneOptions{
				MaxAgeDays: maxAgeDays,
				MinUtility: minUtility,
				Execute:    execute,
			})
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(report)
			}
			if len(report.Candidates) == 0 {
				fmt.Println("nothing to prune")
				return nil
			}
			for _, c := range report.Candidates {
				fmt.Printf("%s  %s  age %dd  score %.2f  %s\n",
					c.ShortID, c.CreatedAt.Format("2006-01-02"), c.AgeDays, c.Score, c.Prompt)
			}
			if execute {
				fmt.Printf("deleted %d episode(s), released %d bytes\n",
					report.Deleted, report.ReleasedBytes)
			} else {
				fmt.Printf("%d candidate(s); re-run with --execute to delete\n",
					len(report.Candidates))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "age threshold (default from config)")
	cmd.Flags().Float64Var(&minUtility, "min-utility", 0, "utility threshold (default from config)")
	cmd.Flags().BoolVar(&execute, "execute", false, "actually delete")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store rollups",
		RunE: func(cmd *cobra.Command, args []string) error {
			en, err := open()
			if err != nil {
				return err
			}
			defer en.Close()

			view, err := en.Stats(cmd.Context(), project)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(view)
			}
			fmt.Printf("episodes: %d (indexed %d, unindexed %d)\n", view.Total, view.Indexed, view.Unindexed)
			fmt.Printf("success rate: %.0f%%\n", view.SuccessRate*100)
			fmt.Printf("utility: min %.2f mean %.2f median %.2f max %.2f\n",
				view.Utility.Min, view.Utility.Mean, view.Utility.Median, view.Utility.Max)
			fmt.Printf("retrievals: %d, helpful: %.1f, feedback events: %d\n",
				view.TotalRetrievals, view.TotalHelpful, view.FeedbackEvents)
			if len(view.TopTags) > 0 {
				fmt.Print("top tags:")
				for _, tc := range view.TopTags {
					fmt.Printf(" %s(%d)", tc.Tag, tc.Count)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "restrict to one project")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine health",
		RunE: func(cmd *cobra.Command, args []string) error {
			en, err := open()
			if err != nil {
				return err
			}
			defer en.Close()

			view, err := en.Status(cmd.Context(), project)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(view)
			}
			fmt.Printf("data dir: %s\n", view.DataDir)
			fmt.Printf("episodes: %d (%d indexed, %d pending indexing)\n",
				view.Episodes, view.Indexed, view.NeedsIndexing)
			if view.EmbeddingReady {
				fmt.Printf("embedding: %s (%d dimensions)\n", view.EmbeddingModel, view.EmbeddingDim)
			} else {
				fmt.Println("embedding: unavailable (lexical fallback active)")
			}
			fmt.Printf("journal events: %d\n", view.JournalEvents)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "restrict to one project")
	return cmd
}

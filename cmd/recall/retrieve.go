package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
	"github.com/fyrsmithlabs/recalld/internal/store"
)

func newRetrieveCmd() *cobra.Command {
	var (
		k             int
		project       string
		minSim        float64
		utilityWeight float64
		simOnly       bool
		all           bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve <query...>",
		Short: "Search past episodes by meaning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			en, err := open()
			if err != nil {
				return err
			}
			defer en.Close()

			opts := retrieval.Options{K: k, Project: project, All: all}
			if cmd.Flags().Changed("min-similarity") {
				opts.MinSimilarity = &minSim
			}
			if simOnly {
				zero := 0.0
				opts.UtilityWeight = &zero
			} else if cmd.Flags().Changed("utility-weight") {
				opts.UtilityWeight = &utilityWeight
			}

			results, err := en.Retrieve(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(results)
			}
			if len(results) == 0 {
				fmt.Println("no relevant episodes found")
				return nil
			}
			printResults(results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "limit", "k", 0, "number of results (default from config)")
	cmd.Flags().StringVar(&project, "project", "", "restrict to one project")
	cmd.Flags().Float64Var(&minSim, "min-similarity", 0, "similarity floor")
	cmd.Flags().Float64Var(&utilityWeight, "utility-weight", 0, "utility share of the combined score")
	cmd.Flags().BoolVar(&simOnly, "similarity-only", false, "rank by similarity alone")
	cmd.Flags().BoolVar(&all, "all", false, "return every candidate above the floor")
	return cmd
}

func printResults(results []retrieval.Scored) {
	for i, r := range results {
		e := r.Episode
		title := e.Intent.Summary
		if title == "" {
			title = e.Intent.RawPrompt
		}
		fmt.Printf("%d. [%s] %s\n", i+1, e.ShortID(), title)
		fmt.Printf("   %s · %s · %s\n",
			e.CreatedAt.Format("2006-01-02"), e.Project, e.Outcome.Status)
		fmt.Printf("   similarity %.0f%% · utility %.0f%% · %s\n",
			r.Similarity*100, r.Utility*100, confidenceLabel(e.Utility.RetrievalCount))
		if len(e.Context.FilesModified) > 0 {
			fmt.Printf("   files: %s\n", strings.Join(e.Context.FilesModified, ", "))
		}
		if len(e.Intent.DomainTags) > 0 {
			fmt.Printf("   tags: %s\n", strings.Join(e.Intent.DomainTags, ", "))
		}
		fmt.Println()
	}
	fmt.Println("feedback: recall feedback helpful --episodes last")
}

func confidenceLabel(retrievals int) string {
	switch {
	case retrievals == 0:
		return "untested"
	case retrievals <= 2:
		return "low confidence"
	case retrievals <= 5:
		return "moderate confidence"
	default:
		return "high confidence"
	}
}

func newListCmd() *cobra.Command {
	var (
		limit   int
		project string
		task    string
		status  string
		tag     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List episodes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			en, err := open()
			if err != nil {
				return err
			}
			defer en.Close()

			eps, err := en.List(cmd.Context(), store.Filter{
				Project:  project,
				TaskType: episode.TaskType(task),
				Status:   episode.Status(status),
				Tag:      tag,
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(eps)
			}
			for _, e := range eps {
				fmt.Printf("%s  %s  %-8s  %-8s  %s\n",
					e.ShortID(), e.CreatedAt.Format("2006-01-02"),
					e.Intent.TaskType, e.Outcome.Status, e.Intent.RawPrompt)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum episodes")
	cmd.Flags().StringVar(&project, "project", "", "filter by project")
	cmd.Flags().StringVar(&task, "task-type", "", "filter by task type")
	cmd.Flags().StringVar(&status, "outcome", "", "filter by outcome status")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by domain tag")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			en, err := open()
			if err != nil {
				return err
			}
			defer en.Close()

			e, err := en.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(e)
			}
			fmt.Print(e.Markdown())
			return nil
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/engine"
)

func newCaptureCmd() *cobra.Command {
	var (
		input   engine.CaptureInput
		tags    []string
		stdin   bool
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Store a finished session as an episode",
		Long: "Store a finished session as an episode. Structured fields come from\n" +
			"flags, or from a JSON CaptureInput document on stdin with --stdin\n" +
			"(the form session-parsing hooks use).",
		RunE: func(cmd *cobra.Command, args []string) error {
			en, err := open()
			if err != nil {
				return err
			}
			defer en.Close()

			if stdin {
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				if err := json.Unmarshal(raw, &input); err != nil {
					return fmt.Errorf("%w: parsing capture input: %v", engine.ErrInvalidInput, err)
				}
			} else {
				input.DomainTags = tags
			}

			result, err := en.Capture(cmd.Context(), input)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(result)
			}
			fmt.Printf("captured episode %s", result.ID[:8])
			if !result.Indexed {
				fmt.Print(" (queued for indexing)")
			}
			if result.Credited > 0 {
				fmt.Printf(", credited %d earlier episode(s)", result.Credited)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Project, "project", "", "project tag")
	cmd.Flags().StringVar(&input.RawPrompt, "prompt", "", "the session's original request")
	cmd.Flags().StringVar(&input.Summary, "summary", "", "short intent summary")
	cmd.Flags().StringVar(&input.TaskType, "task-type", "", "bugfix|feature|refactor|test|docs|research|debug|setup")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "domain tags")
	cmd.Flags().StringSliceVar(&input.FilesModified, "files-modified", nil, "modified file paths")
	cmd.Flags().StringSliceVar(&input.ToolsInvoked, "tools", nil, "tools/commands used")
	cmd.Flags().StringVar(&input.Status, "status", "", "success|partial|failure|unknown")
	cmd.Flags().StringVar(&input.CommitRef, "commit", "", "version-control reference")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "read a JSON CaptureInput from stdin")
	return cmd
}

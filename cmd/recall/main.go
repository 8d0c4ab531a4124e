// Command recall is the command-line adapter for the episodic memory
// engine. It stays thin: every subcommand calls the core facade and
// translates taxonomy errors into exit codes.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/engine"
)

var (
	flagDataDir string
	flagJSON    bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(engine.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "recall",
		Short:         "Episodic memory for coding sessions",
		Long:          "recall records coding sessions as episodes, retrieves them semantically,\nand learns per-episode utility from feedback.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultDir := ".recalld"
	if home, err := os.UserHomeDir(); err == nil {
		defaultDir = filepath.Join(home, ".recalld")
	}
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", defaultDir, "data directory")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output")

	root.AddCommand(
		newInitCmd(),
		newCaptureCmd(),
		newRetrieveCmd(),
		newListCmd(),
		newShowCmd(),
		newFeedbackCmd(),
		newIndexCmd(),
		newPropagateCmd(),
		newPruneCmd(),
		newStatsCmd(),
		newStatusCmd(),
	)
	return root
}

// open loads the engine for the configured data directory.
func open() (*engine.Engine, error) {
	return engine.Open(flagDataDir)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directory layout and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := engine.Init(flagDataDir); err != nil {
				return err
			}
			fmt.Printf("initialized %s\n", flagDataDir)
			return nil
		},
	}
}

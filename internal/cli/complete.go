package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tutu-network/taskd/internal/domain"
)

func init() {
	completeCmd.Flags().StringVarP(&completeFile, "result-file", "f", "", "Read the JSON result from a file")
	rootCmd.AddCommand(completeCmd)
}

var completeFile string

var completeCmd = &cobra.Command{
	Use:   "complete ID [RESULT]",
	Short: "Report a task's result",
	Long: `Mark a task completed and record its result.

RESULT must be valid JSON. Completing a task twice replaces its result.

Example:
  taskd complete 1 '{"ok": true}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runComplete,
}

func runComplete(cmd *cobra.Command, args []string) error {
	id, err := domain.ParseTaskID(args[0])
	if err != nil {
		return err
	}

	result, err := completeResult(args[1:])
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	task, err := c.Complete(cmd.Context(), id, result)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Completed task %d\n", task.ID)
	return nil
}

// completeResult picks the result from the positional arg or --result-file.
func completeResult(args []string) (json.RawMessage, error) {
	var data []byte
	switch {
	case completeFile != "" && len(args) > 0:
		return nil, fmt.Errorf("pass RESULT or --result-file, not both")
	case completeFile != "":
		b, err := os.ReadFile(completeFile)
		if err != nil {
			return nil, fmt.Errorf("read result file: %w", err)
		}
		data = b
	case len(args) > 0:
		data = []byte(args[0])
	default:
		return nil, nil
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("result is not valid JSON")
	}
	return json.RawMessage(data), nil
}

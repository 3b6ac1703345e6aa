package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tutu-network/taskd/internal/domain"
)

func init() {
	submitCmd.Flags().BoolVar(&submitRaw, "json", false, "Send TYPE as a raw JSON value instead of a string")
	rootCmd.AddCommand(submitCmd)
}

var submitRaw bool

var submitCmd = &cobra.Command{
	Use:   "submit TYPE",
	Short: "Submit a new task",
	Long: `Create a pending task.

TYPE is sent as a JSON string unless --json is given.

Example:
  taskd submit build
  taskd submit --json '{"kind": "render", "frames": 24}'`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	taskType := domain.StringType(args[0])
	if submitRaw {
		if !json.Valid([]byte(args[0])) {
			return fmt.Errorf("type is not valid JSON")
		}
		taskType = json.RawMessage(args[0])
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	task, err := c.Submit(cmd.Context(), taskType)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Submitted task %d (%s)\n", task.ID, task.Status)
	return nil
}

package cli

import (
	"github.com/spf13/cobra"
	"github.com/tutu-network/taskd/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveJournal, "journal", false, "Record task events to the SQLite journal (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveJournal bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taskd API server",
	Long:  `Start the task API server at localhost:3000.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveJournal {
		cfg.Journal.Enabled = true
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	return d.Serve(cmd.Context())
}

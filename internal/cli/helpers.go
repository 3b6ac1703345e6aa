package cli

import (
	"github.com/tutu-network/taskd/internal/client"
	"github.com/tutu-network/taskd/internal/daemon"
)

// newClient builds an API client from --addr, falling back to the
// configured listen address.
func newClient() (*client.Client, error) {
	if serverAddr != "" {
		return client.New(serverAddr, nil), nil
	}
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.BaseURL(), nil), nil
}

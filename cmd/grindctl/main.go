/*
main.go - grindctl entry point and API client

PURPOSE:
  Command-line client for the Grindstone engine. Drives the day
  lifecycle from a terminal: plan the day, track work, complete items,
  and watch the score.

SUBCOMMANDS:
  today    Show today's agenda and habits
  list     List work items
  add      Create a task or habit
  start    Start working an item
  stop     Pause the running item
  done     Complete an item (default: the running one)
  roll     Build today's agenda
  points   Balance, history, and projection
  status   Dashboard and background jobs

CONFIGURATION:
  --url / GRINDSTONE_URL          Engine base URL (default http://localhost:8080)
  --api-key / GRINDSTONE_API_KEY  Shared API key

SEE ALSO:
  - commands.go: Subcommand implementations
  - api/dto.go: The wire types decoded here
*/
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	envURL = "GRINDSTONE_URL"
	envKey = "GRINDSTONE_API_KEY"
)

var (
	flagURL string
	flagKey string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "grindctl",
		Short:         "Command-line client for the Grindstone engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagURL, "url", "", "engine base URL (default $GRINDSTONE_URL or http://localhost:8080)")
	root.PersistentFlags().StringVar(&flagKey, "api-key", "", "API key (default $GRINDSTONE_API_KEY)")

	root.AddCommand(
		newTodayCmd(),
		newListCmd(),
		newAddCmd(),
		newStartCmd(),
		newStopCmd(),
		newDoneCmd(),
		newRollCmd(),
		newPointsCmd(),
		newStatusCmd(),
	)
	return root
}

// =============================================================================
// API CLIENT
// =============================================================================

type client struct {
	base string
	key  string
	http *http.Client
}

func apiClient() *client {
	base := flagURL
	if base == "" {
		base = os.Getenv(envURL)
	}
	if base == "" {
		base = "http://localhost:8080"
	}
	key := flagKey
	if key == "" {
		key = os.Getenv(envKey)
	}
	return &client{
		base: strings.TrimRight(base, "/"),
		key:  key,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *client) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach engine at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("engine returned %s", resp.Status)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

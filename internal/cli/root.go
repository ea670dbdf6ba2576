// Package cli provides the ingestctl command-line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Global flags
	serverURL string
	apiToken  string
	timeout   time.Duration
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ingestctl",
	Short: "Operator CLI for a running ingestd",
	Long: `ingestctl drives a running ingestd over its HTTP API: inspect job
state, kick manual runs, manage pending continuations, read the ledger
summary and trigger retention sweeps.

The server address and token default to the INGESTD_SERVER and
INGESTD_API_TOKEN environment variables.`,
	Version:      Version,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("INGESTD_SERVER", "http://127.0.0.1:8080"), "base URL of the ingestd API")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("INGESTD_API_TOKEN"), "bearer token for the operator API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "HTTP request timeout")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// call performs one API request and decodes the JSON response into out
// when out is non-nil. Non-2xx responses become errors carrying the
// server's message.
func call(method, path string, out any) error {
	url := strings.TrimRight(serverURL, "/") + path
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}
	if apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+apiToken)
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// fmtTS renders a unix-nano timestamp for table output.
func fmtTS(ns int64) string {
	if ns == 0 {
		return "-"
	}
	return time.Unix(0, ns).UTC().Format(time.RFC3339)
}

// Package main provides storyctl, the command-line companion for the
// Storyline daemon. It talks to the control API over loopback using
// the token the daemon writes next to its data.
package main

import (
	"bytes"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagAddr    string
	flagDataDir string
	flagToken   string

	rootCmd = &cobra.Command{
		Use:           "storyctl",
		Short:         "Control a running Storyline daemon",
		Long:          "storyctl drives the Storyline daemon's control API: playback, library, sync and pairing management from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "http://127.0.0.1:7575", "control API address")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "daemon data directory (default ~/.storyline)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "device token (default: read from the data dir)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// client is a thin wrapper over the control API.
type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient() (*client, error) {
	token := flagToken
	if token == "" {
		dir := flagDataDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("resolve home dir: %w", err)
			}
			dir = filepath.Join(home, ".storyline")
		}
		raw, err := os.ReadFile(filepath.Join(dir, "cli.token"))
		if err != nil {
			return nil, fmt.Errorf("read CLI token (is the daemon running?): %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}

	return &client{
		base:  strings.TrimRight(flagAddr, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// apiError is the RFC 7807 problem body huma emits on failures.
type apiError struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (c *client) do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.base+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var problem apiError
		if json.Unmarshal(raw, &problem) == nil && problem.Detail != "" {
			return fmt.Errorf("%s (%d)", problem.Detail, resp.StatusCode)
		}
		if problem.Title != "" {
			return fmt.Errorf("%s (%d)", problem.Title, resp.StatusCode)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *client) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *client) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

// printJSON renders a value as indented JSON on stdout.
func printJSON(v any) error {
	raw, err := json.Marshal(v, jsontext.WithIndent("  "))
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

// fmtDuration renders seconds as h:mm:ss or m:ss.
func fmtDuration(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

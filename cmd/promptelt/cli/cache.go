package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newCacheCmd manages the cache of a running server over its REST API.
func newCacheCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate the query cache of a running server",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server base URL (default http://127.0.0.1:<server.port>)")

	client := func() *apiClient { return newAPIClient(serverURL) }

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show connection, cache and snapshot statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().printGET("/api/stats", nil)
		},
	})

	var (
		entriesDB    int64
		entriesLimit int
	)
	entries := &cobra.Command{
		Use:   "entries",
		Short: "List cached results, most recently used first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if entriesDB > 0 {
				q.Set("databaseId", strconv.FormatInt(entriesDB, 10))
			}
			q.Set("limit", strconv.Itoa(entriesLimit))
			return client().printGET("/api/cache/entries", q)
		},
	}
	entries.Flags().Int64Var(&entriesDB, "database", 0, "Only entries of this database id")
	entries.Flags().IntVar(&entriesLimit, "limit", 50, "Maximum entries to list")
	cmd.AddCommand(entries)

	var (
		pattern string
		invDB   int64
	)
	invalidate := &cobra.Command{
		Use:   "invalidate",
		Short: "Remove cached results by query pattern and/or database id",
		Long:  "Remove cached results whose query contains --pattern or that belong to --database. Without either flag the whole cache is cleared.",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if pattern != "" {
				q.Set("pattern", pattern)
			}
			if invDB > 0 {
				q.Set("databaseId", strconv.FormatInt(invDB, 10))
			}
			return client().print(http.MethodDelete, "/api/cache", q)
		},
	}
	invalidate.Flags().StringVar(&pattern, "pattern", "", "Substring of the cached query")
	invalidate.Flags().Int64Var(&invDB, "database", 0, "Database id")
	cmd.AddCommand(invalidate)

	cmd.AddCommand(&cobra.Command{
		Use:   "archive",
		Short: "Export the cache to the archive bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().print(http.MethodPost, "/api/cache/archive", nil)
		},
	})

	return cmd
}

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	if base == "" {
		port := viper.GetInt("server.port")
		if port == 0 {
			port = 8080
		}
		base = fmt.Sprintf("http://127.0.0.1:%d", port)
	}
	return &apiClient{base: base, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) printGET(path string, q url.Values) error {
	return c.print(http.MethodGet, path, q)
}

// print performs the request and pretty-prints the JSON response. Non-2xx
// responses become errors carrying the server's message.
func (c *apiClient) print(method, path string, q url.Values) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, errorMessage(v))
	}
	return printJSON(os.Stdout, v)
}

// errorMessage extracts the message of an envelope ({"error": "..."}) or an
// error response ({"error": {"message": "..."}}).
func errorMessage(v interface{}) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	switch e := m["error"].(type) {
	case string:
		return e
	case map[string]interface{}:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	return ""
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siteingest/internal/crawler"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := `
logging:
  development: false
  level: error
crawler:
  requests_per_second: 0
embedding:
  dimensions: 8
`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandPrintsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>This page has enough words to become a chunk of text.</p>
<a href="/next">next</a></body></html>`)
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "crawl", srv.URL+"/", "--max-pages", "1", "--user", "alice", "--config", writeConfig(t))
	require.NoError(t, err)

	var task crawler.Task
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	require.Equal(t, crawler.TaskStateCompleted, task.State)
	require.Equal(t, 1, task.PagesScraped)
	require.Equal(t, "alice", task.Result.CollectionName)
}

func TestCrawlCommandFailsOnEmptySite(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	out, err := execute(t, "crawl", srv.URL+"/", "--config", writeConfig(t))
	require.Error(t, err)
	require.Contains(t, out, `"status": "error"`)
}

func TestCrawlCommandArgs(t *testing.T) {
	_, err := execute(t, "crawl", "--config", writeConfig(t))
	require.Error(t, err)

	_, err = execute(t, "crawl", "ftp://example.test/", "--config", writeConfig(t))
	require.ErrorContains(t, err, "invalid url")
}

func TestRootRejectsBadConfig(t *testing.T) {
	_, err := execute(t, "crawl", "https://example.test/", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load config")
}

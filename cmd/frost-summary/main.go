package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/frost-warsaw/frost/internal/model"
	"github.com/frost-warsaw/frost/internal/report"
	"github.com/frost-warsaw/frost/internal/store"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var apiURL string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/frost/config.yml)")
	flag.StringVar(&apiURL, "api", "", "ask a running collector's HTTP API instead of opening the store (e.g. http://127.0.0.1:3000)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("Frost Summary - Store Reporter\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()

	if apiURL != "" {
		err = summarizeAPI(ctx, os.Stdout, http.DefaultClient, apiURL)
	} else {
		err = summarizeStore(ctx, os.Stdout, cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// summarizeStore opens the store read-only, so it can run next to a
// collector that is still writing.
func summarizeStore(ctx context.Context, w io.Writer, cfg cliConfig) error {
	st, err := store.Open(store.Driver(cfg.DBDriver), cfg.DBPath, store.Options{
		QueryTimeout: cfg.QueryTimeout,
		ReadOnly:     true,
	})
	if err != nil {
		if cfg.DBDriver == string(store.DriverDuckDB) {
			return fmt.Errorf("%w\nduckdb stores cannot be read while the collector holds them; use -api", err)
		}
		return err
	}
	defer st.Close()

	summary, err := st.Summarize(ctx)
	if err != nil {
		return err
	}
	return report.WriteStore(w, "Store summary", summary)
}

// summarizeAPI asks a running collector for its live session summary.
func summarizeAPI(ctx context.Context, w io.Writer, client *http.Client, baseURL string) error {
	endpoint := strings.TrimRight(baseURL, "/") + "/api/summary"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach frost at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("summary request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var summary model.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return fmt.Errorf("decode summary: %w", err)
	}
	return report.WriteSession(w, summary)
}

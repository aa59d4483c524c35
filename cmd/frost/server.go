package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/frost-warsaw/frost/internal/backup"
	"github.com/frost-warsaw/frost/internal/collector"
	"github.com/frost-warsaw/frost/internal/httpserver"
	"github.com/frost-warsaw/frost/internal/model"
	"github.com/frost-warsaw/frost/internal/report"
	"github.com/frost-warsaw/frost/internal/store"
	"github.com/frost-warsaw/frost/internal/stream"
	"github.com/frost-warsaw/frost/internal/umapi"
)

// runCollector runs one collection session until SIGINT or SIGTERM and
// writes the banner and final summary to out.
//
// Everything that can fail is set up before the store is created, so a
// failed start never leaves behind a store that blocks the next one.
func runCollector(cfg appConfig, out io.Writer) (err error) {
	cleanupLogger, err := configureRuntimeLogger(cfg.LogFile)
	if err != nil {
		return err
	}
	defer cleanupLogger()
	defer func() {
		if err != nil {
			log.Printf("frost: fatal: %v", err)
		}
	}()

	client, err := umapi.NewClient(umapi.Config{
		BaseURL:        cfg.BaseURL,
		ResourceID:     cfg.ResourceID,
		APIKey:         cfg.APIKey,
		RequestTimeout: cfg.RequestTimeout,
		RetryBackoff:   cfg.RetryBackoff,
		ErrorMarker:    cfg.ErrorMarker,
	})
	if err != nil {
		return err
	}

	driver := store.Driver(cfg.DBDriver)
	snapshots := &pendingStore{path: cfg.DBPath}
	backupExt := ".db"
	if driver == store.DriverDuckDB {
		backupExt = ".duckdb"
	}
	backupManager, err := backup.NewManager(snapshots, backup.Config{
		Enabled:        cfg.BackupEnabled,
		Interval:       cfg.BackupInterval,
		LocalDir:       cfg.BackupLocalDir,
		KeepLast:       cfg.BackupKeepLast,
		Ext:            backupExt,
		BucketURL:      cfg.BackupBucketURL,
		S3Endpoint:     cfg.BackupS3Endpoint,
		S3Region:       cfg.BackupS3Region,
		S3AccessKey:    cfg.BackupS3AccessKey,
		S3SecretKey:    cfg.BackupS3SecretKey,
		S3SessionToken: cfg.BackupS3SessionToken,
		S3UseSSL:       cfg.BackupS3UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}

	var apiListener net.Listener
	if cfg.APIEnabled {
		apiListener, err = net.Listen("tcp", cfg.APIAddr)
		if err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	hub := stream.NewHub(log.Default())
	defer hub.Close()

	session := collector.NewSession(client, collector.Config{
		Driver:       driver,
		DBPath:       cfg.DBPath,
		StoreOptions: store.Options{QueryTimeout: cfg.QueryTimeout},
		Interval:     cfg.PollInterval,
		Observer:     hub,
	})

	// Refuses to start over an existing store before anything is fetched.
	st, err := session.Open()
	if err != nil {
		if apiListener != nil {
			apiListener.Close()
		}
		return err
	}
	defer st.Close()
	snapshots.store = st

	if apiListener != nil {
		apiServer := httpserver.NewServer(cfg.APIAddr, st, httpserver.Options{
			Session: session,
			Stream:  http.HandlerFunc(hub.ServeWS),
		})
		apiServer.Serve(apiListener)
		defer apiServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopSignals := handleSignals(cancel, cfg.ShutdownTimeout)
	defer stopSignals()

	printStartupBanner(out, cfg, session.ID(), backupManager != nil)

	g, gctx := errgroup.WithContext(ctx)

	var summary model.Summary
	g.Go(func() error {
		s, err := session.Run(gctx)
		summary = s
		return err
	})

	if backupManager != nil {
		g.Go(func() error {
			return backupManager.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return report.WriteSession(out, summary)
}

// handleSignals cancels the session on the first SIGINT or SIGTERM. A second
// signal, or cfg.ShutdownTimeout passing, forces the process out. The
// returned func detaches the handler once shutdown has completed.
func handleSignals(cancel context.CancelFunc, grace time.Duration) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// The in-flight batch and the summary query get the grace period.
		deadline := time.NewTimer(grace)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		case <-done:
			return
		}
		os.Exit(1)
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// pendingStore lets the backup manager be built and checked before the
// store file exists.
type pendingStore struct {
	path  string
	store *store.Store
}

func (p *pendingStore) DBPath() string { return p.path }

func (p *pendingStore) SnapshotTo(dstPath string) error {
	if p.store == nil {
		return errors.New("store is not open yet")
	}
	return p.store.SnapshotTo(dstPath)
}

// configureRuntimeLogger sets the log format and, when logFile is set, tees
// log output into it.
func configureRuntimeLogger(logFile string) (func(), error) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	if logFile == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}

func printStartupBanner(w io.Writer, cfg appConfig, sessionID string, backupsOn bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╦═╗╔═╗╔═╗╔╦╗
    ╠╣ ╠╦╝║ ║╚═╗ ║
    ╚  ╩╚═╚═╝╚═╝ ╩`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	// Upstream
	lines = append(lines, bold.Render("    Upstream"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Endpoint       %s", check, cyan.Render(cfg.BaseURL)))
	lines = append(lines, fmt.Sprintf("    %s  Poll Every     %s", check, dim.Render(cfg.PollInterval.String())))
	lines = append(lines, fmt.Sprintf("    %s  Retry Every    %s", check, dim.Render(cfg.RetryBackoff.String())))
	lines = append(lines, "")

	// Gateway
	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
		lines = append(lines, fmt.Sprintf("    %s  Live Stream    %s", check, cyan.Render("ws://"+cfg.APIAddr+"/api/stream")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	// Storage
	lines = append(lines, bold.Render("    Storage"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Storage        %s", check, dim.Render(cfg.DBDriver+" "+shortenPath(cfg.DBPath))))
	if backupsOn {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", check, dim.Render(shortenPath(cfg.BackupLocalDir))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	// Session
	lines = append(lines, bold.Render("    Session"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Session ID     %s", check, dim.Render(sessionID)))
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}

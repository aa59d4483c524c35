package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24
	defaultExt      = ".db"
	filePrefix      = "frost-"
	stampLayout     = "20060102-150405"
)

// Manager snapshots the store on a fixed interval, optionally uploads each
// snapshot and keeps only the newest KeepLast local copies.
type Manager struct {
	store    Snapshotter
	cfg      Config
	uploader Uploader
	logger   *log.Logger
	now      func() time.Time
}

// NewManager validates cfg. It returns nil, nil when backups are disabled.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, errors.New("backup: nil snapshotter")
	}
	if strings.TrimSpace(store.DBPath()) == "" {
		return nil, errors.New("backup: db-path is empty (in-memory store)")
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, errors.New("backup: local-dir is required when backup is enabled")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if cfg.Ext == "" {
		cfg.Ext = defaultExt
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	m := &Manager{store: store, cfg: cfg, logger: logger, now: time.Now}
	if strings.TrimSpace(cfg.BucketURL) != "" {
		u, err := NewS3Uploader(S3Config{
			BucketURL:    cfg.BucketURL,
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			SessionToken: cfg.S3SessionToken,
			UseSSL:       cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("backup: init s3 uploader: %w", err)
		}
		m.uploader = u
	}
	return m, nil
}

// Run takes a snapshot right away and then every Interval until ctx is done.
// Failed snapshots are logged and do not stop the loop.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Printf("backup: WARN snapshot failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce writes one snapshot, uploads it when configured and prunes old
// local copies. It returns the snapshot path.
func (m *Manager) RunOnce(ctx context.Context) (string, error) {
	localPath := m.nextPath()

	if err := m.store.SnapshotTo(localPath); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	m.logger.Printf("backup: created snapshot %s", localPath)

	if m.uploader != nil {
		if err := m.uploader.UploadFile(ctx, localPath); err != nil {
			return localPath, fmt.Errorf("upload: %w", err)
		}
		m.logger.Printf("backup: uploaded snapshot %s", filepath.Base(localPath))
	}

	if err := pruneLocalBackups(m.cfg.LocalDir, m.cfg.Ext, m.cfg.KeepLast); err != nil {
		return localPath, fmt.Errorf("prune local backups: %w", err)
	}
	return localPath, nil
}

// nextPath names a snapshot after the current UTC second, adding a counter
// when that name is already taken.
func (m *Manager) nextPath() string {
	stamp := m.now().UTC().Format(stampLayout)
	path := filepath.Join(m.cfg.LocalDir, filePrefix+stamp+m.cfg.Ext)
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(m.cfg.LocalDir, fmt.Sprintf("%s%s_%02d%s", filePrefix, stamp, i, m.cfg.Ext))
	}
	return path
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func pruneLocalBackups(localDir, ext string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(localDir, filePrefix+"*"+ext))
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	// The timestamp leads the name, so lexical order is chronological.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	for _, oldPath := range matches[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

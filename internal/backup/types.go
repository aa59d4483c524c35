// Package backup takes periodic snapshots of the vehicle store.
package backup

import (
	"context"
	"log"
	"time"
)

// Config controls periodic store snapshots.
type Config struct {
	Enabled  bool
	Interval time.Duration
	LocalDir string
	KeepLast int
	// Ext is the snapshot file extension, including the dot.
	Ext       string
	BucketURL string

	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3SessionToken string
	S3UseSSL       bool

	Logger *log.Logger
}

// Snapshotter is the store contract the Manager needs.
type Snapshotter interface {
	DBPath() string
	SnapshotTo(dstPath string) error
}

// Uploader ships one snapshot file off the machine.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}

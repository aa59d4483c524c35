package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/frost-warsaw/frost/internal/model"
)

func TestSnapshotTo(t *testing.T) {
	for _, driver := range testDrivers {
		t.Run(string(driver), func(t *testing.T) {
			store := newTestStore(t, driver)
			insertTestRecords(t, store, []*model.VehiclePosition{
				position("1001", "2024-01-01 10:00:00"),
				position("1002", "2024-01-01 10:00:30"),
			})

			dst := filepath.Join(t.TempDir(), "snapshots", "frost-test.db")
			if err := store.SnapshotTo(dst); err != nil {
				t.Fatalf("SnapshotTo: %v", err)
			}

			snap, err := Open(driver, dst, Options{ReadOnly: true})
			if err != nil {
				t.Fatalf("open snapshot: %v", err)
			}
			defer snap.Close()

			sum, err := snap.Summarize(context.Background())
			if err != nil {
				t.Fatalf("snapshot Summarize: %v", err)
			}
			if sum.Records != 2 {
				t.Errorf("snapshot records = %d, want 2", sum.Records)
			}
		})
	}
}

func TestSnapshotToInMemory(t *testing.T) {
	store, err := Create(DriverSQLite, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer store.Close()

	err = store.SnapshotTo(filepath.Join(t.TempDir(), "snap.db"))
	if !errors.Is(err, ErrInMemoryStore) {
		t.Errorf("SnapshotTo error = %v, want ErrInMemoryStore", err)
	}
}

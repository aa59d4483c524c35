package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/frost-warsaw/frost/internal/model"
)

const insertVehicleSQL = `INSERT OR IGNORE INTO vehicles (line, lon, lat, time, vehicle_number, brigade)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id`

// InsertBatch persists a batch of positions in a single transaction and
// returns how many rows were inserted. Records that collide with an already
// stored (vehicle_number, time) pair are skipped without error; inserted
// records get their ID set.
//
// A failure on the underlying medium rolls the whole batch back. The batch is
// logged and dropped, never retried.
func (s *Store) InsertBatch(ctx context.Context, records []*model.VehiclePosition) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if s.readOnly {
		return 0, ErrReadOnly
	}

	ctx, cancel := context.WithTimeout(ctx, s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.insertBatchTx(ctx, records)
	if err != nil {
		s.logger.Printf("store: WARN abandoning batch of %d records: %v", len(records), err)
		return 0, fmt.Errorf("%w: %v", ErrBatchAbandoned, err)
	}

	var inserted int64
	for i, id := range ids {
		if id != 0 {
			records[i].ID = id
			inserted++
		}
	}
	return inserted, nil
}

// insertBatchTx inserts records in one transaction. The returned slice holds
// the assigned id per record, or 0 for ignored duplicates.
func (s *Store) insertBatchTx(ctx context.Context, records []*model.VehiclePosition) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertVehicleSQL)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]int64, len(records))
	for i, r := range records {
		var id int64
		err := stmt.QueryRowContext(ctx,
			nullString(r.Line), nullFloat(r.Lon), nullFloat(r.Lat),
			nullString(r.ObservedAt), r.VehicleNumber, nullString(r.Brigade),
		).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// duplicate, ignored
		case err != nil:
			return nil, fmt.Errorf("record insert (vehicle=%s): %w", r.VehicleNumber, err)
		default:
			ids[i] = id
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return ids, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

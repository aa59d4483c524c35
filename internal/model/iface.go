package model

import "context"

// PositionWriter persists poll batches.
type PositionWriter interface {
	InsertBatch(ctx context.Context, records []*VehiclePosition) (int64, error)
}

// Summarizer reports record count and observed time span.
type Summarizer interface {
	Summarize(ctx context.Context) (StoreSummary, error)
}

// PositionQuerier provides read-only queries on persisted positions.
type PositionQuerier interface {
	Summarizer
	Positions(ctx context.Context, filter PositionFilter) ([]VehiclePosition, error)
	LatestPositions(ctx context.Context) ([]VehiclePosition, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
	TableColumns() ([]ColumnInfo, error)
}

// ReadAPI is the unified read contract for the HTTP surface.
type ReadAPI interface {
	PositionQuerier
	SchemaQuerier
}

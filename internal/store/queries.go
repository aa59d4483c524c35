package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/frost-warsaw/frost/internal/model"
)

const (
	defaultPositionsLimit = 1000
	maxPositionsLimit     = 10000
	maxQueryRows          = 1000
)

// dangerousKeywordPattern matches statements that could modify the store or
// reach outside it. It backs up the comment stripping and semicolon checks.
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET|VACUUM|REINDEX|CHECKPOINT)\b`,
)

// blockCommentPattern matches C-style block comments (/* ... */).
var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments from a query.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.QueryTimeout)
}

// Summarize returns the record count and the earliest and latest observed
// timestamps across all persisted records.
func (s *Store) Summarize(ctx context.Context) (model.StoreSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var sum model.StoreSummary
	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MIN(time), MAX(time) FROM vehicles`).
		Scan(&sum.Records, &first, &last)
	if err != nil {
		return model.StoreSummary{}, fmt.Errorf("store: summarize: %w", err)
	}
	sum.FirstObserved = stringPtr(first)
	sum.LastObserved = stringPtr(last)
	return sum, nil
}

// positionFilter builds the WHERE clause for a PositionFilter.
func positionFilter(f model.PositionFilter) (clause string, args []interface{}) {
	var conditions []string
	if f.VehicleNumber != "" {
		conditions = append(conditions, "vehicle_number = ?")
		args = append(args, f.VehicleNumber)
	}
	if f.Line != "" {
		conditions = append(conditions, "line = ?")
		args = append(args, f.Line)
	}
	if f.From != "" {
		conditions = append(conditions, "time >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		conditions = append(conditions, "time <= ?")
		args = append(args, f.To)
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// Positions returns persisted positions matching filter in arrival (id) order.
func (s *Store) Positions(ctx context.Context, filter model.PositionFilter) ([]model.VehiclePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPositionsLimit
	}
	if limit > maxPositionsLimit {
		limit = maxPositionsLimit
	}

	where, args := positionFilter(filter)
	query := fmt.Sprintf(`
		SELECT id, time, lon, lat, line, vehicle_number, brigade
		FROM vehicles %s
		ORDER BY id
		LIMIT ?`, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanPositions(rows, "Positions")
}

// LatestPositions returns the most recently stored position of every vehicle.
func (s *Store) LatestPositions(ctx context.Context) ([]model.VehiclePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.time, v.lon, v.lat, v.line, v.vehicle_number, v.brigade
		FROM vehicles v
		JOIN (
			SELECT vehicle_number, MAX(id) AS id
			FROM vehicles
			GROUP BY vehicle_number
		) latest ON latest.id = v.id
		ORDER BY v.vehicle_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanPositions(rows, "LatestPositions")
}

func (s *Store) scanPositions(rows *sql.Rows, caller string) ([]model.VehiclePosition, error) {
	var results []model.VehiclePosition
	for rows.Next() {
		var (
			p                    model.VehiclePosition
			observed, line, brig sql.NullString
			lon, lat             sql.NullFloat64
			vehicle              sql.NullString
		)
		if err := rows.Scan(&p.ID, &observed, &lon, &lat, &line, &vehicle, &brig); err != nil {
			s.logger.Printf("store: scan error (%s): %v", caller, err)
			continue
		}
		p.ObservedAt = stringPtr(observed)
		p.Line = stringPtr(line)
		p.Brigade = stringPtr(brig)
		p.VehicleNumber = vehicle.String
		p.Lon = floatPtr(lon)
		p.Lat = floatPtr(lat)
		results = append(results, p)
	}
	return results, rows.Err()
}

// ExecuteQuery runs a read-only SQL query and returns results as maps.
// Only SELECT/WITH read queries are allowed; DDL/DML is rejected.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(query)

	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("query must not contain semicolons")
	}

	// Keywords hidden in comments are still caught after stripping.
	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT/WITH queries are allowed")
	}

	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(context.Background())
	defer cancel()
	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() && len(results) < maxQueryRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			s.logger.Printf("store: scan error (ExecuteQuery): %v", err)
			continue
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable description of the vehicles table.
func (s *Store) GetSchemaDescription() string {
	return `Table 'vehicles': id (INTEGER, surrogate key in arrival order), ` +
		`time (TEXT, upstream observation time "YYYY-MM-DD HH:MM:SS"), ` +
		`lon (REAL, WGS84 degrees), lat (REAL, WGS84 degrees), line (TEXT), ` +
		`vehicle_number (TEXT), brigade (TEXT). Unique on (vehicle_number, time).`
}

// TableRowCounts returns the row count for each known table using a hardcoded allowlist.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(context.Background())
	defer cancel()

	allowedTables := []string{"vehicles", "schema_migrations"}
	counts := make(map[string]int64, len(allowedTables))

	for _, table := range allowedTables {
		var count int64
		// Table names are hardcoded constants, not user input.
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			continue
		}
		counts[table] = count
	}
	return counts, nil
}

// TableColumns returns column names and declared types of the vehicles table.
func (s *Store) TableColumns() ([]model.ColumnInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(context.Background())
	defer cancel()

	var query string
	switch s.driver {
	case DriverDuckDB:
		query = `SELECT column_name, data_type FROM information_schema.columns
			WHERE table_name = 'vehicles' ORDER BY ordinal_position`
	default:
		query = `SELECT name, type FROM pragma_table_info('vehicles') ORDER BY cid`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []model.ColumnInfo
	for rows.Next() {
		var c model.ColumnInfo
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

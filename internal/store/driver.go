package store

import (
	"net/url"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"
)

// Driver names the embedded SQL engine behind a Store.
type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverDuckDB Driver = "duckdb"
)

// sqliteBusyTimeoutMS bounds how long a reader or the writer waits on the
// other side's lock before giving up.
const sqliteBusyTimeoutMS = "5000"

// Valid reports whether d is a supported driver.
func (d Driver) Valid() bool {
	return d == DriverSQLite || d == DriverDuckDB
}

func (d Driver) sqlName() string {
	return string(d)
}

// dsn builds the connection string for dbPath. An empty path is in-memory.
// SQLite files run in WAL mode so an external reader never blocks the writer.
func (d Driver) dsn(dbPath string, readOnly bool) string {
	switch d {
	case DriverSQLite:
		if dbPath == "" {
			return ":memory:"
		}
		q := url.Values{}
		q.Add("_pragma", "busy_timeout("+sqliteBusyTimeoutMS+")")
		if readOnly {
			q.Set("mode", "ro")
		} else {
			q.Add("_pragma", "journal_mode(WAL)")
			q.Add("_pragma", "synchronous(NORMAL)")
		}
		return "file:" + dbPath + "?" + q.Encode()
	case DriverDuckDB:
		if readOnly && dbPath != "" {
			return dbPath + "?access_mode=read_only"
		}
		return dbPath
	default:
		return dbPath
	}
}

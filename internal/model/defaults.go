package model

import "time"

// Shared defaults used by both the collector and the summary CLI.
const (
	DefaultPollInterval   = 25 * time.Second
	DefaultRetryBackoff   = 5 * time.Second
	DefaultRequestTimeout = 2 * time.Second
	DefaultDBDriver       = "sqlite"
	DefaultDBPath         = "data/vehicles.db"
	DefaultErrorMarker    = "Błędna"
)

package model

import (
	"fmt"
	"time"
)

// VehicleClass distinguishes the two upstream endpoint variants.
type VehicleClass int

const (
	VehicleClassBus  VehicleClass = 1
	VehicleClassTram VehicleClass = 2
)

// VehicleClasses lists the classes polled in each cycle, in poll order.
var VehicleClasses = []VehicleClass{VehicleClassBus, VehicleClassTram}

func (c VehicleClass) String() string {
	switch c {
	case VehicleClassBus:
		return "bus"
	case VehicleClassTram:
		return "tram"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Valid reports whether c is one of the two classes the upstream accepts.
func (c VehicleClass) Valid() bool {
	return c == VehicleClassBus || c == VehicleClassTram
}

// VehiclePosition is one observation of one vehicle at one moment.
// Nil pointer fields mean the upstream did not supply the value.
// ID is assigned by the store on insert and is zero before that.
type VehiclePosition struct {
	ID            int64    `json:"id"`
	Line          *string  `json:"line"`
	VehicleNumber string   `json:"vehicle_number"`
	Brigade       *string  `json:"brigade"`
	Lon           *float64 `json:"lon"`
	Lat           *float64 `json:"lat"`
	ObservedAt    *string  `json:"time"`
}

// PollBatch holds the records extracted from one successful response.
type PollBatch struct {
	Class   VehicleClass
	Cycle   int64
	Records []*VehiclePosition
}

// StoreSummary is the end-of-session view of the persisted data.
// FirstObserved and LastObserved are nil when the store holds no timestamps.
type StoreSummary struct {
	Records       int64   `json:"records"`
	FirstObserved *string `json:"first_observed"`
	LastObserved  *string `json:"last_observed"`
}

// Summary reports what one collection session did.
type Summary struct {
	StoreSummary
	SessionID        string        `json:"session_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	Cycles           int64         `json:"cycles"`
	Persisted        int64         `json:"persisted"`
	AbandonedBatches int64         `json:"abandoned_batches"`
}

// PositionFilter narrows read-side position queries.
// From and To compare against the upstream time text; empty means unbounded.
type PositionFilter struct {
	VehicleNumber string
	Line          string
	From          string
	To            string
	Limit         int
}

// ColumnInfo describes one column of the vehicles table.
type ColumnInfo struct {
	Name string `json:"column"`
	Type string `json:"type"`
}

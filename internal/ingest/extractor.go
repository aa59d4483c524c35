// Package ingest maps raw API result entries into vehicle position records.
package ingest

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/frost-warsaw/frost/internal/model"
)

// Field names used by the city API for one result entry.
const (
	FieldLine          = "Lines"
	FieldLon           = "Lon"
	FieldLat           = "Lat"
	FieldTime          = "Time"
	FieldVehicleNumber = "VehicleNumber"
	FieldBrigade       = "Brigade"
)

// Extract maps result entries into a PollBatch for class. Entries that are
// not JSON objects or carry no vehicle number are dropped silently.
func Extract(class model.VehicleClass, entries []json.RawMessage) model.PollBatch {
	batch := model.PollBatch{
		Class:   class,
		Records: make([]*model.VehiclePosition, 0, len(entries)),
	}
	for _, entry := range entries {
		raw, ok := decodeEntry(entry)
		if !ok {
			continue
		}
		if rec := ExtractRecord(raw); rec != nil {
			batch.Records = append(batch.Records, rec)
		}
	}
	return batch
}

// ExtractRecord maps one decoded entry. It returns nil when the entry has no
// vehicle number. Every other field is optional and left nil when missing.
func ExtractRecord(raw map[string]interface{}) *model.VehiclePosition {
	vehicle := ExtractStringField(raw, FieldVehicleNumber)
	if vehicle == "" {
		return nil
	}
	return &model.VehiclePosition{
		Line:          optionalString(raw, FieldLine),
		VehicleNumber: vehicle,
		Brigade:       optionalString(raw, FieldBrigade),
		Lon:           ExtractFloatField(raw, FieldLon),
		Lat:           ExtractFloatField(raw, FieldLat),
		ObservedAt:    optionalString(raw, FieldTime),
	}
}

func decodeEntry(entry json.RawMessage) (map[string]interface{}, bool) {
	dec := json.NewDecoder(bytes.NewReader(entry))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, false
	}
	return raw, true
}

// ExtractStringField returns the first non-empty value found among the given
// keys, rendered as text. Numbers are accepted since the API is not strict
// about identifier types.
func ExtractStringField(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if str := stringifyJSONValue(v); str != "" {
				return str
			}
		}
	}
	return ""
}

// ExtractFloatField returns the numeric value under key, or nil when the key
// is missing or not a finite number. Numeric strings are accepted.
func ExtractFloatField(raw map[string]interface{}, key string) *float64 {
	var f float64
	switch v := raw[key].(type) {
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return nil
		}
		f = n
	case float64:
		f = v
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func optionalString(raw map[string]interface{}, key string) *string {
	s := ExtractStringField(raw, key)
	if s == "" {
		return nil
	}
	return &s
}

func stringifyJSONValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

package ingest

import (
	"encoding/json"
	"testing"

	"github.com/frost-warsaw/frost/internal/model"
)

func entries(raw ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(raw))
	for i, r := range raw {
		out[i] = json.RawMessage(r)
	}
	return out
}

func TestExtract_HappyPath(t *testing.T) {
	t.Parallel()
	batch := Extract(model.VehicleClassBus, entries(
		`{"Lines":"175","Lon":21.0,"Lat":52.2,"Time":"2024-01-01 10:00:00","VehicleNumber":"1001","Brigade":"01"}`,
	))

	if batch.Class != model.VehicleClassBus {
		t.Errorf("class = %v, want bus", batch.Class)
	}
	if len(batch.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(batch.Records))
	}
	rec := batch.Records[0]
	if rec.Line == nil || *rec.Line != "175" {
		t.Errorf("line = %v, want 175", rec.Line)
	}
	if rec.VehicleNumber != "1001" {
		t.Errorf("vehicle = %q, want 1001", rec.VehicleNumber)
	}
	if rec.Brigade == nil || *rec.Brigade != "01" {
		t.Errorf("brigade = %v, want 01", rec.Brigade)
	}
	if rec.Lon == nil || *rec.Lon != 21.0 || rec.Lat == nil || *rec.Lat != 52.2 {
		t.Errorf("coords = %v,%v, want 21.0,52.2", rec.Lon, rec.Lat)
	}
	if rec.ObservedAt == nil || *rec.ObservedAt != "2024-01-01 10:00:00" {
		t.Errorf("time = %v", rec.ObservedAt)
	}
	if rec.ID != 0 {
		t.Errorf("id = %d, want 0 before insert", rec.ID)
	}
}

func TestExtract_MissingBrigadeKept(t *testing.T) {
	t.Parallel()
	batch := Extract(model.VehicleClassTram, entries(
		`{"Lines":"17","Lon":21.0,"Lat":52.2,"Time":"2024-01-01 10:00:00","VehicleNumber":"3001"}`,
		`{"Lines":"17","Lon":21.0,"Lat":52.2,"Time":"2024-01-01 10:00:00","VehicleNumber":"3002","Brigade":""}`,
	))

	if len(batch.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(batch.Records))
	}
	for _, rec := range batch.Records {
		if rec.Brigade != nil {
			t.Errorf("vehicle %s brigade = %q, want absent", rec.VehicleNumber, *rec.Brigade)
		}
	}
}

func TestExtract_MissingVehicleNumberDropped(t *testing.T) {
	t.Parallel()
	batch := Extract(model.VehicleClassBus, entries(
		`{"Lines":"175","Lon":21.0,"Lat":52.2,"Time":"2024-01-01 10:00:00","Brigade":"01"}`,
		`{"Lines":"175","VehicleNumber":"","Brigade":"01"}`,
		`{"Lines":"175","VehicleNumber":"1002"}`,
	))

	if len(batch.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(batch.Records))
	}
	if batch.Records[0].VehicleNumber != "1002" {
		t.Errorf("vehicle = %q, want 1002", batch.Records[0].VehicleNumber)
	}
}

func TestExtract_MalformedEntriesSkipped(t *testing.T) {
	t.Parallel()
	batch := Extract(model.VehicleClassBus, entries(
		`"just a string"`,
		`[1,2,3]`,
		`null`,
		`{"VehicleNumber":`,
		`{"VehicleNumber":"1001"}`,
	))

	if len(batch.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(batch.Records))
	}
}

func TestExtract_LooseTypes(t *testing.T) {
	t.Parallel()
	batch := Extract(model.VehicleClassBus, entries(
		`{"Lines":175,"Lon":"21.05","Lat":"bad","VehicleNumber":1001,"Brigade":3}`,
	))

	if len(batch.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(batch.Records))
	}
	rec := batch.Records[0]
	if rec.VehicleNumber != "1001" {
		t.Errorf("vehicle = %q, want 1001", rec.VehicleNumber)
	}
	if rec.Line == nil || *rec.Line != "175" {
		t.Errorf("line = %v, want 175", rec.Line)
	}
	if rec.Brigade == nil || *rec.Brigade != "3" {
		t.Errorf("brigade = %v, want 3", rec.Brigade)
	}
	if rec.Lon == nil || *rec.Lon != 21.05 {
		t.Errorf("lon = %v, want 21.05", rec.Lon)
	}
	if rec.Lat != nil {
		t.Errorf("lat = %v, want absent", *rec.Lat)
	}
	if rec.ObservedAt != nil {
		t.Errorf("time = %v, want absent", *rec.ObservedAt)
	}
}

func TestExtract_CoordinatesNotRangeChecked(t *testing.T) {
	t.Parallel()
	batch := Extract(model.VehicleClassBus, entries(`{"VehicleNumber":"1","Lon":999.5,"Lat":-200}`))

	if len(batch.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(batch.Records))
	}
	if *batch.Records[0].Lon != 999.5 || *batch.Records[0].Lat != -200 {
		t.Errorf("coords altered: %v,%v", *batch.Records[0].Lon, *batch.Records[0].Lat)
	}
}

func TestExtract_Empty(t *testing.T) {
	t.Parallel()
	batch := Extract(model.VehicleClassTram, nil)
	if len(batch.Records) != 0 {
		t.Errorf("records = %d, want 0", len(batch.Records))
	}
}

func TestExtractStringField(t *testing.T) {
	t.Parallel()
	raw := map[string]interface{}{"a": "", "b": "  x ", "c": json.Number("12")}
	if got := ExtractStringField(raw, "a", "b"); got != "x" {
		t.Errorf("got %q, want x", got)
	}
	if got := ExtractStringField(raw, "c"); got != "12" {
		t.Errorf("got %q, want 12", got)
	}
	if got := ExtractStringField(raw, "missing"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

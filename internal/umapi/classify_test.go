package umapi

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		raw     RawResponse
		wantErr error
		wantLen int
	}{
		{
			name:    "list",
			raw:     RawResponse{StatusCode: 200, Body: []byte(`{"result":[{"VehicleNumber":"1"},{"VehicleNumber":"2"}]}`)},
			wantLen: 2,
		},
		{
			name:    "empty list",
			raw:     RawResponse{StatusCode: 200, Body: []byte(`{"result":[]}`)},
			wantLen: 0,
		},
		{
			name:    "marker",
			raw:     RawResponse{StatusCode: 200, Body: []byte(`{"result":"Błędna metoda lub parametry wywołania"}`)},
			wantErr: ErrUpstream,
		},
		{
			name:    "error object",
			raw:     RawResponse{StatusCode: 200, Body: []byte(`{"result":{"error":"brak danych"}}`)},
			wantErr: ErrUpstream,
		},
		{
			name:    "missing result",
			raw:     RawResponse{StatusCode: 200, Body: []byte(`{"error":"x"}`)},
			wantErr: ErrTransport,
		},
		{
			name:    "null result",
			raw:     RawResponse{StatusCode: 200, Body: []byte(`{"result":null}`)},
			wantErr: ErrTransport,
		},
		{
			name:    "not json",
			raw:     RawResponse{StatusCode: 200, Body: []byte(`<html></html>`)},
			wantErr: ErrTransport,
		},
		{
			name:    "bad status",
			raw:     RawResponse{StatusCode: 503, Body: []byte(`{"result":[]}`)},
			wantErr: ErrTransport,
		},
		{
			name:    "network",
			raw:     RawResponse{Err: errors.New("connection refused")},
			wantErr: ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Classify(tt.raw, "Błędna")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if payload != nil {
					t.Error("payload returned with error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(payload.Result) != tt.wantLen {
				t.Errorf("entries = %d, want %d", len(payload.Result), tt.wantLen)
			}
		})
	}
}

func TestClassifyTruncatesOnRuneBoundary(t *testing.T) {
	msg := strings.Repeat("a", maxMessageLen-1) + "ęęę"
	body, err := json.Marshal(map[string]string{"result": msg})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	_, err = Classify(RawResponse{StatusCode: 200, Body: body}, "Błędna")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
	if !utf8.ValidString(err.Error()) {
		t.Fatalf("error text is not valid UTF-8: %q", err.Error())
	}
	if !strings.HasSuffix(err.Error(), strings.Repeat("a", maxMessageLen-1)+"...") {
		t.Errorf("error = %q, want the message cut before the split rune", err.Error())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Błędna metoda", 20, "Błędna metoda"},
		{"Błędna metoda", 2, "B..."},
		{"Błędna metoda", 3, "Bł..."},
		{"ęę", 1, "..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

package main

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/frost-warsaw/frost/internal/store"
)

const (
	busBody  = `{"result":[{"Lines":"175","Lon":21.01,"Lat":52.23,"Time":"2024-01-01 10:00:00","VehicleNumber":"1001","Brigade":"01"}]}`
	tramBody = `{"result":[{"Lines":"17","Lon":20.98,"Lat":52.25,"Time":"2024-01-01 10:00:30","VehicleNumber":"2002","Brigade":"3"}]}`
)

// fakeUpstream serves one fixed vehicle per class and closes ready once it
// has answered n requests.
func fakeUpstream(t *testing.T, n int64) (*httptest.Server, <-chan struct{}) {
	t.Helper()
	var (
		requests atomic.Int64
		once     sync.Once
		ready    = make(chan struct{})
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("type") {
		case "1":
			w.Write([]byte(busBody))
		case "2":
			w.Write([]byte(tramBody))
		default:
			w.Write([]byte(`{"result":"Błędna metoda lub parametry wywołania"}`))
		}
		if requests.Add(1) >= n {
			once.Do(func() { close(ready) })
		}
	}))
	t.Cleanup(srv.Close)
	return srv, ready
}

func testAppConfig(t *testing.T, baseURL string) appConfig {
	t.Helper()
	dir := t.TempDir()
	return appConfig{
		APIKey:          "test-key",
		BaseURL:         baseURL,
		ResourceID:      "test-resource",
		PollInterval:    20 * time.Millisecond,
		RetryBackoff:    10 * time.Millisecond,
		RequestTimeout:  time.Second,
		ErrorMarker:     "Błędna",
		DBDriver:        "sqlite",
		DBPath:          filepath.Join(dir, "data", "frost.db"),
		QueryTimeout:    5 * time.Second,
		APIAddr:         "127.0.0.1:0",
		BackupInterval:  time.Hour,
		LogFile:         filepath.Join(dir, "logs", "frost.log"),
		ShutdownTimeout: 5 * time.Second,
	}
}

func TestRunCollectorInterruptPrintsSummary(t *testing.T) {
	upstream, ready := fakeUpstream(t, 3)
	cfg := testAppConfig(t, upstream.URL)
	cfg.APIEnabled = true

	var out bytes.Buffer
	errCh := make(chan error, 1)
	go func() { errCh <- runCollector(cfg, &out) }()

	select {
	case <-ready:
	case err := <-errCh:
		t.Fatalf("runCollector returned before polling: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("upstream was never polled")
	}

	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("find process: %v", err)
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		t.Skipf("cannot deliver interrupt on this platform: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runCollector: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runCollector did not stop after interrupt")
	}

	got := out.String()
	if !strings.Contains(got, "Session summary") {
		t.Fatalf("missing summary in output:\n%s", got)
	}
	// One bus and one tram, however many cycles ran.
	if !regexp.MustCompile(`Persisted\s+2\n`).MatchString(got) {
		t.Errorf("want 2 persisted records in output:\n%s", got)
	}
	if _, err := os.Stat(cfg.DBPath); err != nil {
		t.Errorf("store missing after a clean run: %v", err)
	}
}

func TestRunCollectorFailedStartLeavesNoStore(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, cfg *appConfig)
		wantErr string
	}{
		{
			name: "api port taken",
			setup: func(t *testing.T, cfg *appConfig) {
				ln, err := net.Listen("tcp", "127.0.0.1:0")
				if err != nil {
					t.Fatalf("listen: %v", err)
				}
				t.Cleanup(func() { ln.Close() })
				cfg.APIEnabled = true
				cfg.APIAddr = ln.Addr().String()
			},
			wantErr: "failed to start API server",
		},
		{
			name: "unsupported bucket",
			setup: func(t *testing.T, cfg *appConfig) {
				cfg.BackupEnabled = true
				cfg.BackupLocalDir = filepath.Join(t.TempDir(), "snapshots")
				cfg.BackupBucketURL = "https://example.com/snapshots"
			},
			wantErr: "failed to initialize backups",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAppConfig(t, "http://127.0.0.1:1")
			tt.setup(t, &cfg)

			var out bytes.Buffer
			err := runCollector(cfg, &out)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
			if _, statErr := os.Stat(cfg.DBPath); !os.IsNotExist(statErr) {
				t.Fatalf("store left behind after failed start: %v", statErr)
			}

			logged, readErr := os.ReadFile(cfg.LogFile)
			if readErr != nil {
				t.Fatalf("read log file: %v", readErr)
			}
			if !strings.Contains(string(logged), "frost: fatal: "+tt.wantErr) {
				t.Errorf("log file lacks the fatal cause:\n%s", logged)
			}

			// Nothing blocks the next start at the same path.
			st, err := store.Create(store.DriverSQLite, cfg.DBPath)
			if err != nil {
				t.Fatalf("create after failed start: %v", err)
			}
			st.Close()
		})
	}
}

func TestRunCollectorRefusesExistingStore(t *testing.T) {
	cfg := testAppConfig(t, "http://127.0.0.1:1")
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.DBPath, []byte("earlier session"), 0644); err != nil {
		t.Fatal(err)
	}

	err := runCollector(cfg, &bytes.Buffer{})
	if !errors.Is(err, store.ErrStoreExists) {
		t.Fatalf("err = %v, want ErrStoreExists", err)
	}
	data, readErr := os.ReadFile(cfg.DBPath)
	if readErr != nil || string(data) != "earlier session" {
		t.Errorf("existing store was touched: %q %v", data, readErr)
	}
}

package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/example/lesson-scheduler/internal/config"
	"github.com/example/lesson-scheduler/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sqliteConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DatabaseDriver: config.DriverSQLite,
		SQLiteDSN:      filepath.Join(t.TempDir(), "scheduler.db"),
		KafkaTopic:     notify.DefaultTopic,
	}
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	t.Run("opens and migrates sqlite", func(t *testing.T) {
		t.Parallel()
		store, err := openStore(context.Background(), sqliteConfig(t))
		if err != nil {
			t.Fatalf("openStore returned error: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })

		if err := store.Ping(context.Background()); err != nil {
			t.Fatalf("expected reachable store, got %v", err)
		}
		types, err := store.ListMeetingTypes(context.Background(), "admin-001")
		if err != nil {
			t.Fatalf("expected migrated schema, got %v", err)
		}
		if len(types) != 0 {
			t.Fatalf("expected empty store, got %d meeting types", len(types))
		}
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		t.Parallel()
		if _, err := openStore(context.Background(), config.Config{DatabaseDriver: "mysql"}); err == nil {
			t.Fatalf("expected error for unsupported driver")
		}
	})
}

func TestNewNotifier(t *testing.T) {
	t.Parallel()

	t.Run("logs events without brokers", func(t *testing.T) {
		t.Parallel()
		notifier, closeFn, err := newNotifier(config.Config{}, discardLogger())
		if err != nil {
			t.Fatalf("newNotifier returned error: %v", err)
		}
		if _, ok := notifier.(notify.Log); !ok {
			t.Fatalf("expected log notifier, got %T", notifier)
		}
		if err := closeFn(); err != nil {
			t.Fatalf("close returned error: %v", err)
		}
	})

	t.Run("publishes to kafka when brokers are set", func(t *testing.T) {
		t.Parallel()
		notifier, closeFn, err := newNotifier(config.Config{KafkaBrokers: "localhost:9092", KafkaTopic: "lessons"}, discardLogger())
		if err != nil {
			t.Fatalf("newNotifier returned error: %v", err)
		}
		if _, ok := notifier.(*notify.KafkaNotifier); !ok {
			t.Fatalf("expected kafka notifier, got %T", notifier)
		}
		if err := closeFn(); err != nil {
			t.Fatalf("close returned error: %v", err)
		}
	})
}

func TestNewHandlerServesProbesAndGuardsAdmin(t *testing.T) {
	t.Parallel()

	cfg := sqliteConfig(t)
	store, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStore returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	server := httptest.NewServer(newHandler(store, notify.Log{Logger: discardLogger()}, cfg, discardLogger()))
	t.Cleanup(server.Close)

	cases := []struct {
		path string
		want int
	}{
		{path: "/healthz", want: http.StatusOK},
		{path: "/readyz", want: http.StatusOK},
		{path: "/admin/settings", want: http.StatusUnauthorized},
		{path: "/api/meeting-types/unknown/slots?start_date=2030-01-07", want: http.StatusNotFound},
	}
	for _, tc := range cases {
		resp, err := http.Get(server.URL + tc.path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", tc.path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("GET %s: expected %d, got %d", tc.path, tc.want, resp.StatusCode)
		}
	}
}

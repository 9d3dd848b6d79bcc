package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/lesson-scheduler/internal/persistence"
	"github.com/example/lesson-scheduler/internal/persistence/sqlite"
	"github.com/example/lesson-scheduler/internal/testfixtures"
)

type testEnv struct {
	store    *sqlite.Store
	clock    *testfixtures.Clock
	notifier *recordingNotifier
	deps     Dependencies
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := testfixtures.NewSQLiteStore(t)
	clock := testfixtures.NewClock(time.Time{})
	notifier := &recordingNotifier{}
	tokens := testfixtures.NewIDGenerator("token")
	return &testEnv{
		store:    store,
		clock:    clock,
		notifier: notifier,
		deps: Dependencies{
			Store:          store,
			Notifier:       notifier,
			IDGenerator:    testfixtures.NewIDGenerator("id").NextFunc(),
			TokenGenerator: tokens.NextFunc(),
			Now:            clock.NowFunc(),
			Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
	}
}

// seed stores mt with Monday to Friday 09:00-17:00 availability.
func (e *testEnv) seed(t *testing.T, opts ...testfixtures.MeetingTypeOption) persistence.MeetingType {
	t.Helper()
	mt := testfixtures.NewMeetingType(opts...)
	testfixtures.Seed(t, e.store, mt, testfixtures.Weekdays(mt.ID))
	return mt
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []BookingEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event BookingEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) recorded() []BookingEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]BookingEvent, len(n.events))
	copy(out, n.events)
	return out
}

// monday returns 2024-06-03 at hh:mm UTC.
func monday(hour, minute int) time.Time {
	return time.Date(2024, time.June, 3, hour, minute, 0, 0, time.UTC)
}

func requireFieldError(t *testing.T, err error, field string) {
	t.Helper()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors[field]; !ok {
		t.Fatalf("expected field error for %q, got %v", field, vErr.FieldErrors)
	}
}

func visitor() VisitorInput {
	return VisitorInput{Name: "Hanako Yamada", Email: "hanako@example.com"}
}

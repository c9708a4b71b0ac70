package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

func TestRegistryOwnership(t *testing.T) {
	reg := NewRegistry(logger.NewNop(), Timings{})
	var boundTo string
	ctrl := reg.Open(OpenRequest{UserID: "linh", UserName: "Linh"}, func(id string) Deps {
		boundTo = id
		return Deps{Responder: &fakeResponder{}, Clock: newFakeClock(morning)}
	})
	if boundTo != ctrl.ID() {
		t.Fatalf("deps bound to %q, controller is %q", boundTo, ctrl.ID())
	}

	if got, err := reg.Get(ctrl.ID(), "linh"); err != nil || got != ctrl {
		t.Fatalf("Get: %v", err)
	}
	if _, err := reg.Get(ctrl.ID(), "minh"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("other users must not see the session, got %v", err)
	}
	if err := reg.Close(ctrl.ID(), "minh"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("other users must not close the session, got %v", err)
	}
	if err := reg.Close(ctrl.ID(), "linh"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !ctrl.Snapshot().Closed || reg.Len() != 0 {
		t.Fatalf("session not closed and removed")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	reg := NewRegistry(logger.NewNop(), DefaultTimings())
	build := func(string) Deps { return Deps{Responder: &fakeResponder{}, Clock: newFakeClock(morning)} }
	a := reg.Open(OpenRequest{UserID: "a", UserName: "A"}, build)
	b := reg.Open(OpenRequest{UserID: "b", UserName: "B"}, build)
	reg.CloseAll()
	if reg.Len() != 0 || !a.Snapshot().Closed || !b.Snapshot().Closed {
		t.Fatalf("CloseAll left sessions open")
	}
}

func TestWelcomeUsesLearnerZone(t *testing.T) {
	// 02:00 UTC is 09:00 in Ho Chi Minh City.
	clock := newFakeClock(time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC))
	loc, err := LearnerLocation("Asia/Ho_Chi_Minh", nil)
	if err != nil {
		t.Fatalf("LearnerLocation: %v", err)
	}
	reg := NewRegistry(logger.NewNop(), DefaultTimings(), WithRegistryClock(clock))
	t.Cleanup(reg.CloseAll)
	ctrl := reg.Open(OpenRequest{UserID: "linh", UserName: "Linh", Location: loc}, func(string) Deps {
		return Deps{Responder: &fakeResponder{}, Clock: clock, Pick: func(int) int { return 0 }}
	})
	if err := ctrl.EnterVoiceMode(); err != nil {
		t.Fatalf("EnterVoiceMode: %v", err)
	}
	snap := ctrl.Snapshot()
	if len(snap.Transcript) == 0 || !strings.HasPrefix(snap.Transcript[0].Text, "Good morning, Linh!") {
		t.Fatalf("welcome = %+v", snap.Transcript)
	}
}

func TestLearnerLocation(t *testing.T) {
	offset := func(m int) *int { return &m }
	at := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		zone     string
		offset   *int
		wantHour int
		wantNil  bool
		wantErr  bool
	}{
		{name: "none", wantNil: true},
		{name: "iana", zone: "Asia/Ho_Chi_Minh", wantHour: 9},
		{name: "iana wins", zone: "UTC", offset: offset(420), wantHour: 2},
		{name: "offset east", offset: offset(420), wantHour: 9},
		{name: "offset west", offset: offset(-330), wantHour: 20},
		{name: "unknown zone", zone: "Mars/Olympus", wantErr: true},
		{name: "server local", zone: "Local", wantErr: true},
		{name: "offset out of range", offset: offset(15 * 60), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := LearnerLocation(tc.zone, tc.offset)
			if tc.wantErr {
				if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
					t.Fatalf("expected invalid argument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LearnerLocation: %v", err)
			}
			if tc.wantNil {
				if loc != nil {
					t.Fatalf("expected nil location, got %v", loc)
				}
				return
			}
			if got := at.In(loc).Hour(); got != tc.wantHour {
				t.Fatalf("hour = %d, want %d", got, tc.wantHour)
			}
		})
	}
}

func TestReaperClosesIdleSessions(t *testing.T) {
	clock := newFakeClock(morning)
	var evicted []string
	reg := NewRegistry(logger.NewNop(), DefaultTimings(),
		WithRegistryClock(clock),
		WithOnEvict(func(id string) { evicted = append(evicted, id) }))
	t.Cleanup(reg.CloseAll)
	build := func(string) Deps { return Deps{Responder: &fakeResponder{}, Clock: clock} }

	idle := reg.Open(OpenRequest{UserID: "a", UserName: "A"}, build)
	busy := reg.Open(OpenRequest{UserID: "b", UserName: "B"}, build)
	streaming := reg.Open(OpenRequest{UserID: "c", UserName: "C"}, build)
	detach := reg.Attach(streaming.ID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.StartReaper(ctx)

	timeout := DefaultTimings().IdleTimeout
	clock.Advance(timeout / 2)
	if _, err := reg.Get(busy.ID(), "b"); err != nil {
		t.Fatalf("Get busy: %v", err)
	}
	clock.Advance(timeout/2 + time.Minute)

	if reg.Len() != 2 || !idle.Snapshot().Closed {
		t.Fatalf("idle session not reaped: len=%d", reg.Len())
	}
	if len(evicted) != 1 || evicted[0] != idle.ID() {
		t.Fatalf("evicted = %v", evicted)
	}
	if _, err := reg.Get(idle.ID(), "a"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("reaped session still reachable: %v", err)
	}

	clock.Advance(24 * time.Hour)
	if reg.Len() != 1 || !busy.Snapshot().Closed || streaming.Snapshot().Closed {
		t.Fatalf("only the attached session should survive: len=%d", reg.Len())
	}

	detach()
	detach()
	clock.Advance(timeout + timeout/2)
	if reg.Len() != 0 || !streaming.Snapshot().Closed {
		t.Fatalf("detached session not reaped: len=%d", reg.Len())
	}
}

func TestReaperStopsWithContext(t *testing.T) {
	clock := newFakeClock(morning)
	reg := NewRegistry(logger.NewNop(), DefaultTimings(), WithRegistryClock(clock))
	t.Cleanup(reg.CloseAll)
	reg.Open(OpenRequest{UserID: "a", UserName: "A"}, func(string) Deps {
		return Deps{Responder: &fakeResponder{}, Clock: clock}
	})
	ctx, cancel := context.WithCancel(context.Background())
	reg.StartReaper(ctx)
	cancel()
	clock.Advance(24 * time.Hour)
	if reg.Len() != 1 {
		t.Fatalf("reaper kept running after cancel: len=%d", reg.Len())
	}
}

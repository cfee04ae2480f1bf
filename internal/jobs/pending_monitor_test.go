package jobs

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/digiloans/voicebot/internal/callqueue"
	"github.com/digiloans/voicebot/internal/notifications"
)

func TestPendingMonitor_Check(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		placed  []time.Duration // offsets before base
		want    bool
		wantLen int
	}{
		{"empty register", nil, false, 0},
		{"fresh context", []time.Duration{30 * time.Second}, false, 1},
		{"stale context", []time.Duration{5 * time.Minute, 10 * time.Second}, true, 2},
		{"exactly max age", []time.Duration{2 * time.Minute}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := callqueue.New()
			for _, off := range tt.placed {
				reg.Push(callqueue.CallContext{PhoneNumber: "+919876543210", PlacedAt: base.Add(-off)})
			}
			j := NewPendingMonitor(reg, nil, log.New(io.Discard, "", 0), 0, 0)
			j.now = func() time.Time { return base }

			if got := j.check(context.Background()); got != tt.want {
				t.Errorf("check() = %t, want %t", got, tt.want)
			}
			if reg.Len() != tt.wantLen {
				t.Errorf("register Len() = %d, want %d; the monitor must not remove contexts", reg.Len(), tt.wantLen)
			}
		})
	}
}

func TestPendingMonitor_ReportsEachContextOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	reg := callqueue.New()
	reg.Push(callqueue.CallContext{PhoneNumber: "+911111111111", PlacedAt: base.Add(-5 * time.Minute)})
	reg.Push(callqueue.CallContext{PhoneNumber: "+912222222222", PlacedAt: base.Add(-4 * time.Minute)})

	discord := notifications.NewDiscord(srv.URL, log.New(io.Discard, "", 0))
	j := NewPendingMonitor(reg, discord, log.New(io.Discard, "", 0), time.Minute, time.Minute)
	j.now = func() time.Time { return base }

	if !j.check(context.Background()) {
		t.Fatal("first check should report the stale context")
	}
	if j.check(context.Background()) {
		t.Error("second check should not report the same context again")
	}

	// The next context is stale too and gets its own report.
	reg.Pop()
	if !j.check(context.Background()) {
		t.Error("check should report the next stale context")
	}

	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hits.Load() != 2 {
		t.Errorf("webhook hit %d times, want 2", hits.Load())
	}
}

func TestPendingMonitor_StartStop(t *testing.T) {
	j := NewPendingMonitor(callqueue.New(), nil, log.New(io.Discard, "", 0), 10*time.Millisecond, time.Minute)
	j.Start()
	time.Sleep(30 * time.Millisecond)
	j.Stop()
}

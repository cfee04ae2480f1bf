package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/digiloans/voicebot/internal/callqueue"
	"github.com/digiloans/voicebot/internal/notifications"
)

// PendingMonitor watches the pending-call register for contexts that no
// media stream has claimed. Streams are paired in order, so one unclaimed
// context shifts every later pairing by one; the monitor only reports this.
type PendingMonitor struct {
	register *callqueue.Register
	discord  *notifications.Discord
	logger   *log.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time

	alerted time.Time // PlacedAt of the last context reported
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPendingMonitor creates a monitor. Zero interval and maxAge default to
// 30s and 2m.
func NewPendingMonitor(r *callqueue.Register, discord *notifications.Discord, logger *log.Logger, interval, maxAge time.Duration) *PendingMonitor {
	if interval == 0 {
		interval = 30 * time.Second
	}
	if maxAge == 0 {
		maxAge = 2 * time.Minute
	}
	return &PendingMonitor{
		register: r,
		discord:  discord,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background job.
func (j *PendingMonitor) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Printf("PendingMonitor: started (interval=%v, maxAge=%v)", j.interval, j.maxAge)
}

// Stop gracefully stops the background job.
func (j *PendingMonitor) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Println("PendingMonitor: stopped")
}

func (j *PendingMonitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.check(context.Background())
		case <-j.stopCh:
			return
		}
	}
}

// check reports the oldest pending context once if it is older than maxAge.
// It returns whether a report was made.
func (j *PendingMonitor) check(ctx context.Context) bool {
	oldest, ok := j.register.Peek()
	if !ok || oldest.PlacedAt.IsZero() {
		return false
	}
	age := j.now().Sub(oldest.PlacedAt)
	if age < j.maxAge || oldest.PlacedAt.Equal(j.alerted) {
		return false
	}
	j.alerted = oldest.PlacedAt

	pending := j.register.Len()
	j.logger.Printf("PendingMonitor: WARNING call to %s placed %v ago has no media stream (%d pending)",
		oldest.PhoneNumber, age.Round(time.Second), pending)
	j.discord.NotifyStalePending(ctx, pending, oldest.PhoneNumber, age)
	return true
}

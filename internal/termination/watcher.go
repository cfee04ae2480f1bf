package termination

import (
	"context"
	"log"
	"time"

	"github.com/digiloans/voicebot/internal/transcript"
)

// DefaultWatchInterval is how long the watcher sleeps between checks when
// nothing new has been said.
const DefaultWatchInterval = 500 * time.Millisecond

// Watcher is the pattern-match fallback. It inspects each new assistant
// turn once and reports the first match.
type Watcher struct {
	Rules    *Rules
	Interval time.Duration
	Logger   *log.Logger
}

// Watch blocks until ctx is done or a rule matches. fire is called at most once.
func (w *Watcher) Watch(ctx context.Context, tr *transcript.Transcript, fire func(Reason)) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	rules := w.Rules
	if rules == nil {
		rules = DefaultRules()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	inspected := -1
	seenLen := 0
	for {
		changed := tr.Changed()

		if n := tr.Len(); n != seenLen {
			seenLen = n
			if turn, idx, ok := tr.Last(transcript.RoleAssistant); ok && idx > inspected {
				inspected = idx
				if reason, hit := rules.Match(turn.Content); hit {
					if w.Logger != nil {
						w.Logger.Printf("termination: watcher matched %s in %q", reason, turn.Content)
					}
					fire(reason)
					return
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-changed:
		case <-ticker.C:
		}
	}
}

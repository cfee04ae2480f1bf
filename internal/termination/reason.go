// Package termination decides when a live conversation is over and why.
//
// There are two independent signals. The model may call the end_call tool,
// and a Watcher pattern-matches what the assistant just said in case the
// model spoke a goodbye without calling it. Both funnel into one callback
// that must be idempotent.
package termination

import "strings"

type Reason string

const (
	ReasonWrongPerson          Reason = "wrong_person"
	ReasonNotInterested        Reason = "customer_not_interested"
	ReasonGoodbye              Reason = "customer_goodbye"
	ReasonConversationComplete Reason = "conversation_complete"
	ReasonUnknown              Reason = "unknown"
)

// Reasons lists every valid reason.
var Reasons = []Reason{
	ReasonWrongPerson,
	ReasonNotInterested,
	ReasonGoodbye,
	ReasonConversationComplete,
	ReasonUnknown,
}

// ParseReason normalises s; anything unrecognised becomes ReasonUnknown.
func ParseReason(s string) Reason {
	r := Reason(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Reasons {
		if r == known {
			return r
		}
	}
	return ReasonUnknown
}

func (r Reason) String() string { return string(r) }

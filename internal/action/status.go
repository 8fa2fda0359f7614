package action

import "fmt"

// Status is a goal's lifecycle state. Unknown only exists before a
// handle is initialized and must never be observed afterwards.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusPending
	StatusActive
	StatusPreempted
	StatusSucceeded
	StatusAborted
	StatusCanceled
	StatusRejected
)

var statusNames = map[Status]string{
	StatusUnknown:   "unknown",
	StatusPending:   "pending",
	StatusActive:    "active",
	StatusPreempted: "preempted",
	StatusSucceeded: "succeeded",
	StatusAborted:   "aborted",
	StatusCanceled:  "canceled",
	StatusRejected:  "rejected",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusPreempted, StatusSucceeded, StatusAborted, StatusCanceled, StatusRejected:
		return true
	}
	return false
}

// ParseStatus maps a wire status string to a Status. An empty string
// resolves to succeeded: result envelopes may omit the status.
func ParseStatus(raw string) (Status, error) {
	if raw == "" {
		return StatusSucceeded, nil
	}
	for s, name := range statusNames {
		if name == raw && s != StatusUnknown {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("action: invalid status %q", raw)
}

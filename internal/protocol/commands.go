package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/perchlabs/buslink/internal/protocol/frame"
)

// Marker prefixes every reserved frame name. Application topics must not
// start with it.
const Marker = "__"

const (
	CmdSubscribe   = "__subscribe"
	CmdUnsubscribe = "__unsubscribe"
	CmdTopicList   = "__topic_list"
	CmdServiceList = "__service_list"
	CmdRequest     = "__request"
	CmdResponse    = "__response"
	CmdGoal        = "__goal"
	CmdFeedback    = "__feedback"
	CmdResult      = "__result"
	CmdCancel      = "__cancel"
)

var (
	ErrInvalidEnvelope = errors.New("protocol: invalid command envelope")
	ErrUnknownCommand  = errors.New("protocol: unknown system command")
	ErrReservedName    = errors.New("protocol: reserved frame name")
)

// IsSystem reports whether a frame name is a reserved command name.
func IsSystem(name string) bool {
	return strings.HasPrefix(name, Marker)
}

// IsTwoPhase reports whether the command's real payload arrives in the
// next frame rather than in the envelope itself.
func IsTwoPhase(cmd string) bool {
	switch cmd {
	case CmdRequest, CmdResponse, CmdGoal, CmdFeedback, CmdResult:
		return true
	}
	return false
}

// Subscription is the envelope for __subscribe and __unsubscribe.
type Subscription struct {
	Topic string `json:"topic"`
}

func (s Subscription) Validate() error {
	if strings.TrimSpace(s.Topic) == "" {
		return fmt.Errorf("%w: missing topic", ErrInvalidEnvelope)
	}
	return nil
}

// Correlation is the envelope for __request and __response. Service is
// only set on the request path; the response is matched by ID alone.
type Correlation struct {
	Service string `json:"service,omitempty"`
	ID      int64  `json:"id"`
}

func (c Correlation) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("%w: missing correlation id", ErrInvalidEnvelope)
	}
	return nil
}

// GoalMeta is the envelope for __goal, __feedback, and __cancel.
type GoalMeta struct {
	Action string `json:"action"`
	GoalID string `json:"goal_id"`
}

func (g GoalMeta) Validate() error {
	if strings.TrimSpace(g.Action) == "" {
		return fmt.Errorf("%w: missing action", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(g.GoalID) == "" {
		return fmt.Errorf("%w: missing goal_id", ErrInvalidEnvelope)
	}
	return nil
}

// ResultMeta is the envelope for __result. Status is optional on the
// wire; an absent status resolves to "succeeded" on delivery.
type ResultMeta struct {
	Action string `json:"action"`
	GoalID string `json:"goal_id"`
	Status string `json:"status,omitempty"`
}

func (r ResultMeta) Validate() error {
	return GoalMeta{Action: r.Action, GoalID: r.GoalID}.Validate()
}

// NameList is the envelope for __topic_list and __service_list. The
// Response flag tells the two forms apart: without it, a peer holding
// zero names could not answer distinguishably and both ends would treat
// each other's empty lists as fresh requests.
type NameList struct {
	Names    []string `json:"names,omitempty"`
	Response bool     `json:"response,omitempty"`
}

// EncodeCommand builds the envelope frame for one system command.
func EncodeCommand(cmd string, params any) (frame.Frame, error) {
	if !IsSystem(cmd) {
		return frame.Frame{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	if v, ok := params.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return frame.Frame{}, err
		}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return frame.Frame{}, err
	}
	return frame.Frame{Name: cmd, Payload: payload}, nil
}

// DecodeParams unmarshals an envelope payload into out and validates it.
func DecodeParams(payload []byte, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if v, ok := out.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}

// CheckTopicName rejects application topics that collide with the
// reserved marker. Reported synchronously at the call site.
func CheckTopicName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty topic name", ErrInvalidEnvelope)
	}
	if IsSystem(name) {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	return nil
}

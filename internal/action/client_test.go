package action

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/perchlabs/buslink/internal/protocol"
	"github.com/perchlabs/buslink/internal/protocol/frame"
	"github.com/perchlabs/buslink/internal/testutil/testlog"
)

// frameSink records every frame queued for the peer.
type frameSink struct {
	mu     sync.Mutex
	frames []frame.Frame
	fail   error
}

func (s *frameSink) SendFrame(f frame.Frame) error {
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *frameSink) all() []frame.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func TestSendGoalAnnouncesThenSendsPayload(t *testing.T) {
	testlog.Start(t)
	sink := &frameSink{}
	c := NewClient(sink, zerolog.Nop())

	h, err := c.SendGoal("dock", "g1", []byte("goal-bytes"))
	if err != nil {
		t.Fatalf("send goal: %v", err)
	}
	if h.Status() != StatusPending {
		t.Fatalf("status=%v want pending", h.Status())
	}
	frames := sink.all()
	if len(frames) != 2 {
		t.Fatalf("sent %d frames, want 2", len(frames))
	}
	if frames[0].Name != protocol.CmdGoal {
		t.Fatalf("first frame should be goal envelope, got %q", frames[0].Name)
	}
	var meta protocol.GoalMeta
	if err := protocol.DecodeParams(frames[0].Payload, &meta); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if meta.Action != "dock" || meta.GoalID != "g1" {
		t.Fatalf("unexpected envelope: %+v", meta)
	}
	if frames[1].Name != "dock" || string(frames[1].Payload) != "goal-bytes" {
		t.Fatalf("unexpected payload frame: %+v", frames[1])
	}
}

func TestSendGoalGeneratesIDWhenAbsent(t *testing.T) {
	testlog.Start(t)
	c := NewClient(&frameSink{}, zerolog.Nop())
	h, err := c.SendGoal("dock", "", nil)
	if err != nil {
		t.Fatalf("send goal: %v", err)
	}
	if h.ID() == "" {
		t.Fatalf("expected generated goal id")
	}
	if _, ok := c.Goal(h.ID()); !ok {
		t.Fatalf("goal not indexed under generated id")
	}
}

func TestSendGoalRejectsDuplicateID(t *testing.T) {
	testlog.Start(t)
	c := NewClient(&frameSink{}, zerolog.Nop())
	if _, err := c.SendGoal("dock", "g1", nil); err != nil {
		t.Fatalf("send goal: %v", err)
	}
	if _, err := c.SendGoal("dock", "g1", nil); !errors.Is(err, ErrDuplicateGoalID) {
		t.Fatalf("expected ErrDuplicateGoalID, got %v", err)
	}
}

func TestGoalLifecycleFeedbackThenResult(t *testing.T) {
	testlog.Start(t)
	c := NewClient(&frameSink{}, zerolog.Nop())

	feedbackCalls := 0
	resultCalls := 0
	if err := c.OnFeedback("dock", func(goalID string, payload []byte) {
		feedbackCalls++
		if goalID != "g1" || string(payload) != "fb" {
			t.Errorf("unexpected feedback delivery: %q %q", goalID, payload)
		}
	}); err != nil {
		t.Fatalf("on feedback: %v", err)
	}
	if err := c.OnResult("dock", func(goalID string, payload []byte) {
		resultCalls++
	}); err != nil {
		t.Fatalf("on result: %v", err)
	}

	h, err := c.SendGoal("dock", "g1", nil)
	if err != nil {
		t.Fatalf("send goal: %v", err)
	}

	c.HandleFeedback(protocol.GoalMeta{Action: "dock", GoalID: "g1"}, []byte("fb"))
	if feedbackCalls != 1 {
		t.Fatalf("feedback listener invoked %d times, want 1", feedbackCalls)
	}
	if string(h.LastFeedback()) != "fb" {
		t.Fatalf("lastFeedback=%q", h.LastFeedback())
	}
	if h.Status() != StatusActive {
		t.Fatalf("status=%v want active after feedback", h.Status())
	}

	c.HandleResult(protocol.ResultMeta{Action: "dock", GoalID: "g1", Status: "succeeded"}, []byte("res"))
	if resultCalls != 1 {
		t.Fatalf("result listener invoked %d times, want 1", resultCalls)
	}
	if h.Status() != StatusSucceeded {
		t.Fatalf("status=%v want succeeded", h.Status())
	}
	if h.Active() {
		t.Fatalf("handle should be inactive after result")
	}
	if string(h.Result()) != "res" {
		t.Fatalf("result=%q", h.Result())
	}
	for _, g := range c.ActiveGoals() {
		if g.ID() == "g1" {
			t.Fatalf("terminal goal still in active index")
		}
	}
}

func TestResultDefaultsToSucceeded(t *testing.T) {
	testlog.Start(t)
	c := NewClient(&frameSink{}, zerolog.Nop())
	h, _ := c.SendGoal("dock", "g1", nil)
	c.HandleResult(protocol.ResultMeta{Action: "dock", GoalID: "g1"}, nil)
	if h.Status() != StatusSucceeded {
		t.Fatalf("status=%v want succeeded when envelope omits status", h.Status())
	}
}

func TestNoTransitionOutOfTerminalState(t *testing.T) {
	testlog.Start(t)
	c := NewClient(&frameSink{}, zerolog.Nop())
	h, _ := c.SendGoal("dock", "g1", nil)
	c.HandleResult(protocol.ResultMeta{Action: "dock", GoalID: "g1", Status: "aborted"}, nil)
	if h.Status() != StatusAborted {
		t.Fatalf("status=%v want aborted", h.Status())
	}
	// late events must not move a terminal handle
	h.feedback([]byte("late"))
	if h.LastFeedback() != nil {
		t.Fatalf("terminal handle accepted feedback")
	}
	if h.complete(StatusSucceeded, nil) {
		t.Fatalf("terminal handle accepted second completion")
	}
	if h.Status() != StatusAborted {
		t.Fatalf("status changed out of terminal state: %v", h.Status())
	}
}

func TestConcurrentListenerRegistrationDeliversToAll(t *testing.T) {
	testlog.Start(t)
	c := NewClient(&frameSink{}, zerolog.Nop())
	_, _ = c.SendGoal("dock", "g1", nil)

	const n = 16
	var regWG sync.WaitGroup
	var mu sync.Mutex
	calls := 0
	for i := 0; i < n; i++ {
		regWG.Add(1)
		go func() {
			defer regWG.Done()
			_ = c.OnFeedback("dock", func(string, []byte) {
				mu.Lock()
				calls++
				mu.Unlock()
			})
		}()
	}
	regWG.Wait()

	c.HandleFeedback(protocol.GoalMeta{Action: "dock", GoalID: "g1"}, []byte("fb"))
	if calls != n {
		t.Fatalf("delivered %d invocations, want exactly %d", calls, n)
	}
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
	testlog.Start(t)
	c := NewClient(&frameSink{}, zerolog.Nop())
	_, _ = c.SendGoal("dock", "g1", nil)
	ran := false
	_ = c.OnResult("dock", func(string, []byte) { panic("boom") })
	_ = c.OnResult("dock", func(string, []byte) { ran = true })
	c.HandleResult(protocol.ResultMeta{Action: "dock", GoalID: "g1", Status: "succeeded"}, nil)
	if !ran {
		t.Fatalf("second result listener starved by panicking first")
	}
}

func TestCancelIsAdvisory(t *testing.T) {
	testlog.Start(t)
	sink := &frameSink{}
	c := NewClient(sink, zerolog.Nop())
	h, _ := c.SendGoal("dock", "g1", nil)
	if err := c.Cancel("dock", "g1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// no local transition: only a result frame moves the handle
	if h.Status() != StatusPending {
		t.Fatalf("cancel forced local transition: %v", h.Status())
	}
	frames := sink.all()
	last := frames[len(frames)-1]
	if last.Name != protocol.CmdCancel {
		t.Fatalf("expected cancel envelope, got %q", last.Name)
	}
}

func TestActiveGoalsIsSnapshot(t *testing.T) {
	testlog.Start(t)
	c := NewClient(&frameSink{}, zerolog.Nop())
	_, _ = c.SendGoal("dock", "g1", nil)
	snap := c.ActiveGoals()
	_, _ = c.SendGoal("dock", "g2", nil)
	if len(snap) != 1 {
		t.Fatalf("snapshot mutated by later sends: %d", len(snap))
	}
}

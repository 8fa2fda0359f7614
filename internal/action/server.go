package action

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/perchlabs/buslink/internal/observability"
	"github.com/perchlabs/buslink/internal/protocol"
	"github.com/perchlabs/buslink/internal/protocol/frame"
)

var ErrNilGoalHandler = errors.New("action: nil goal handler")

// GoalFunc executes one incoming goal. Returning nil declines the goal;
// the transport then sends an explicit reject result to the peer.
// Deserializing the payload into a typed goal is the caller's concern.
type GoalFunc func(goalID string, goal []byte) *Handle

// CancelFunc observes a peer cancel request. Advisory: the server stays
// free to finish, abort, or cancel the goal on its own schedule.
type CancelFunc func(goalID string)

type serverHandlers struct {
	onGoal   GoalFunc
	onCancel CancelFunc
}

// Server executes goals the peer sends us. At most one registration per
// action name; re-registration replaces handlers.
type Server struct {
	mu       sync.RWMutex
	sender   Sender
	logger   zerolog.Logger
	handlers map[string]serverHandlers
	active   map[string]map[string][]byte
}

func NewServer(sender Sender, logger zerolog.Logger) *Server {
	return &Server{
		sender:   sender,
		logger:   logger.With().Str("component", "action_server").Logger(),
		handlers: make(map[string]serverHandlers),
		active:   make(map[string]map[string][]byte),
	}
}

func (s *Server) Register(action string, onGoal GoalFunc, onCancel CancelFunc) error {
	if err := protocol.CheckTopicName(action); err != nil {
		return err
	}
	if onGoal == nil {
		return ErrNilGoalHandler
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[action] = serverHandlers{onGoal: onGoal, onCancel: onCancel}
	return nil
}

func (s *Server) Unregister(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, action)
}

// HandleGoal records the goal and invokes the registered handler.
// Dispatcher goroutine only. A missing handler is logged, not fatal; a
// nil handle from the handler sends an explicit reject result.
func (s *Server) HandleGoal(meta protocol.GoalMeta, goal []byte) {
	s.mu.Lock()
	h, ok := s.handlers[meta.Action]
	if ok {
		goals := s.active[meta.Action]
		if goals == nil {
			goals = make(map[string][]byte)
			s.active[meta.Action] = goals
		}
		goals[meta.GoalID] = goal
	}
	n := s.activeCountLocked()
	s.mu.Unlock()
	observability.SetActiveGoals("server", n)

	if !ok {
		s.logger.Warn().Str("action", meta.Action).Msg("goal for unregistered action")
		return
	}

	handle := s.invokeGoal(meta, h.onGoal, goal)
	if handle == nil {
		s.logger.Info().Str("action", meta.Action).Str("goal_id", meta.GoalID).Msg("goal rejected by handler")
		s.finish(meta.Action, meta.GoalID, StatusRejected, nil)
	}
}

// HandleCancel invokes the registered cancel handler immediately.
// Dispatcher goroutine only.
func (s *Server) HandleCancel(meta protocol.GoalMeta) {
	s.mu.RLock()
	h, ok := s.handlers[meta.Action]
	s.mu.RUnlock()
	if !ok || h.onCancel == nil {
		s.logger.Warn().Str("action", meta.Action).Str("goal_id", meta.GoalID).Msg("cancel with no handler")
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Str("action", meta.Action).Interface("panic", rec).Msg("cancel handler panicked")
			observability.RecordCallbackPanic()
		}
	}()
	h.onCancel(meta.GoalID)
}

// Succeed completes a goal with the succeeded status.
func (s *Server) Succeed(action, goalID string, result []byte) error {
	return s.finish(action, goalID, StatusSucceeded, result)
}

// Abort completes a goal with the aborted status.
func (s *Server) Abort(action, goalID string, result []byte) error {
	return s.finish(action, goalID, StatusAborted, result)
}

// Cancel completes a goal with the canceled status.
func (s *Server) Cancel(action, goalID string, result []byte) error {
	return s.finish(action, goalID, StatusCanceled, result)
}

// PublishFeedback queues a feedback envelope and payload. No liveness
// check: feedback for an unknown or completed goal is accepted and has
// no client-side effect.
func (s *Server) PublishFeedback(action, goalID string, feedback []byte) error {
	env, err := protocol.EncodeCommand(protocol.CmdFeedback, protocol.GoalMeta{Action: action, GoalID: goalID})
	if err != nil {
		return err
	}
	if err := s.sender.SendFrame(env); err != nil {
		return err
	}
	return s.sender.SendFrame(frame.Frame{Name: action, Payload: feedback})
}

// ActiveGoal returns the stored payload for an in-flight goal.
func (s *Server) ActiveGoal(action, goalID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	goal, ok := s.active[action][goalID]
	return goal, ok
}

// ActiveGoalIDs returns a snapshot of in-flight goal ids for an action.
func (s *Server) ActiveGoalIDs(action string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.active[action]))
	for id := range s.active[action] {
		out = append(out, id)
	}
	return out
}

func (s *Server) finish(action, goalID string, status Status, result []byte) error {
	env, err := protocol.EncodeCommand(protocol.CmdResult, protocol.ResultMeta{
		Action: action,
		GoalID: goalID,
		Status: status.String(),
	})
	if err != nil {
		return err
	}
	if err := s.sender.SendFrame(env); err != nil {
		return err
	}
	if err := s.sender.SendFrame(frame.Frame{Name: action, Payload: result}); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.active[action], goalID)
	n := s.activeCountLocked()
	s.mu.Unlock()
	observability.SetActiveGoals("server", n)
	return nil
}

func (s *Server) invokeGoal(meta protocol.GoalMeta, fn GoalFunc, goal []byte) (handle *Handle) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Str("action", meta.Action).Interface("panic", rec).Msg("goal handler panicked")
			observability.RecordCallbackPanic()
			handle = nil
		}
	}()
	return fn(meta.GoalID, goal)
}

func (s *Server) activeCountLocked() int {
	n := 0
	for _, goals := range s.active {
		n += len(goals)
	}
	return n
}

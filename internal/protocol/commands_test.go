package protocol

import (
	"errors"
	"testing"
)

func TestEncodeCommandRoundTrip(t *testing.T) {
	f, err := EncodeCommand(CmdGoal, GoalMeta{Action: "dock", GoalID: "g1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if f.Name != CmdGoal {
		t.Fatalf("unexpected frame name %q", f.Name)
	}
	var got GoalMeta
	if err := DecodeParams(f.Payload, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Action != "dock" || got.GoalID != "g1" {
		t.Fatalf("unexpected meta: %+v", got)
	}
}

func TestEncodeCommandValidates(t *testing.T) {
	if _, err := EncodeCommand(CmdSubscribe, Subscription{}); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
	if _, err := EncodeCommand(CmdRequest, Correlation{Service: "add_two_ints"}); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope for missing id, got %v", err)
	}
	if _, err := EncodeCommand("plain_topic", Subscription{Topic: "t"}); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestDecodeParamsRejectsGarbage(t *testing.T) {
	var meta GoalMeta
	if err := DecodeParams([]byte("{not json"), &meta); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
	if err := DecodeParams([]byte(`{"action":"dock"}`), &meta); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope for missing goal_id, got %v", err)
	}
}

func TestTwoPhaseClassification(t *testing.T) {
	twoPhase := []string{CmdRequest, CmdResponse, CmdGoal, CmdFeedback, CmdResult}
	for _, cmd := range twoPhase {
		if !IsTwoPhase(cmd) {
			t.Fatalf("%s should be two-phase", cmd)
		}
	}
	single := []string{CmdSubscribe, CmdUnsubscribe, CmdTopicList, CmdServiceList, CmdCancel}
	for _, cmd := range single {
		if IsTwoPhase(cmd) {
			t.Fatalf("%s should be single-phase", cmd)
		}
	}
}

func TestCheckTopicName(t *testing.T) {
	if err := CheckTopicName("cmd_vel"); err != nil {
		t.Fatalf("plain topic rejected: %v", err)
	}
	if err := CheckTopicName("__sneaky"); !errors.Is(err, ErrReservedName) {
		t.Fatalf("expected ErrReservedName, got %v", err)
	}
	if err := CheckTopicName("  "); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
}

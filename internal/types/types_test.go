package types

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNewRunID_TimeOrdered(t *testing.T) {
	a := NewRunID()
	time.Sleep(2 * time.Millisecond)
	b := NewRunID()

	if a >= b {
		t.Errorf("NewRunID() = %s then %s, want increasing", a, b)
	}
	if _, err := ParseRunID(string(a)); err != nil {
		t.Errorf("ParseRunID(%s) error = %v", a, err)
	}
	ts := RunIDTime(a)
	if d := time.Since(ts); d < 0 || d > time.Minute {
		t.Errorf("RunIDTime(%s) = %v, want about now", a, ts)
	}
}

func TestParseIDs_Invalid(t *testing.T) {
	if _, err := ParseRunID("not-a-uuid"); err == nil {
		t.Error("ParseRunID(not-a-uuid) error = nil, want error")
	}
	if _, err := ParseProblemID(""); err == nil {
		t.Error("ParseProblemID(\"\") error = nil, want error")
	} else if !strings.HasPrefix(err.Error(), `invalid problem id "":`) {
		t.Errorf("ParseProblemID(\"\") error = %q", err)
	}
	if got := RunIDTime("garbage"); !got.IsZero() {
		t.Errorf("RunIDTime(garbage) = %v, want zero", got)
	}
	id := NewProblemID()
	if got, err := ParseProblemID(string(id)); err != nil || got != id {
		t.Errorf("ParseProblemID(%s) = %s, %v", id, got, err)
	}
}

func TestConsistencyError(t *testing.T) {
	err := fmt.Errorf("insert failed: %w", &ConsistencyError{
		Node:   "join#3",
		Tuple:  "(a, b)",
		Detail: "left tuple retracted twice",
		Err:    ErrImpossibleState,
	})

	if !errors.Is(err, ErrImpossibleState) {
		t.Errorf("errors.Is(%v, ErrImpossibleState) = false, want true", err)
	}
	var ce *ConsistencyError
	if !errors.As(err, &ce) || ce.Node != "join#3" {
		t.Errorf("errors.As() node = %v, want join#3", ce)
	}
	want := "insert failed: impossible network state in join#3: left tuple retracted twice (tuple (a, b))"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	noTuple := &ConsistencyError{Node: "scorer#9", Detail: "level overflow", Err: ErrScoreOverflow}
	if got := noTuple.Error(); got != "score level overflow in scorer#9: level overflow" {
		t.Errorf("Error() = %q", got)
	}
}

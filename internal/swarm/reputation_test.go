package swarm

import (
	"errors"
	"testing"
)

func TestAdjustReputation(t *testing.T) {
	tests := []struct {
		rep   uint16
		score int
		want  uint16
	}{
		{1000, 500, 1000},
		{1000, 1000, 1050},
		{1000, 0, 950},
		{1000, 509, 1000},
		{1000, 510, 1001},
		{1000, 491, 1000},
		{1000, 490, 999},
		{9990, 1000, 10000},
		{10000, 1000, 10000},
		{30, 0, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := AdjustReputation(tt.rep, tt.score); got != tt.want {
			t.Errorf("AdjustReputation(%d, %d) = %d, want %d", tt.rep, tt.score, got, tt.want)
		}
	}
}

func TestVoteWeight_Monotonic(t *testing.T) {
	if w := VoteWeight(&Agent{Reputation: 0}); w != 1000 {
		t.Errorf("VoteWeight(0) = %d, want 1000", w)
	}
	if w := VoteWeight(&Agent{Reputation: MaxReputation}); w != 101000 {
		t.Errorf("VoteWeight(max) = %d, want 101000", w)
	}
	prev := VoteWeight(&Agent{Reputation: 0})
	for rep := uint16(1); rep <= MaxReputation; rep++ {
		w := VoteWeight(&Agent{Reputation: rep})
		if w <= prev {
			t.Fatalf("VoteWeight(%d) = %d, not above %d", rep, w, prev)
		}
		prev = w
	}
}

func TestValidateScore(t *testing.T) {
	for _, score := range []int{0, 500, 1000} {
		if err := validateScore(score); err != nil {
			t.Errorf("validateScore(%d) = %v", score, err)
		}
	}
	for _, score := range []int{-1, 1001} {
		if err := validateScore(score); !errors.Is(err, ErrInvalidScore) {
			t.Errorf("validateScore(%d) = %v, want %v", score, err, ErrInvalidScore)
		}
	}
}

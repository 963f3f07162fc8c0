package stratum

import (
	"bytes"
	"testing"
)

func TestDifficultyToTargetDifficultyOne(t *testing.T) {
	target, err := DifficultyToTarget(1)
	if err != nil {
		t.Fatalf("DifficultyToTarget: %v", err)
	}
	// target1 = 2^224 - 1: bytes [0:4) are zero, byte 4 is 0xFF.
	for i := 0; i < 4; i++ {
		if target[i] != 0 {
			t.Fatalf("expected leading zero byte at %d, got %#x", i, target[i])
		}
	}
	if target[4] != 0xFF {
		t.Fatalf("expected 0xFF at byte 4, got %#x", target[4])
	}
}

func TestDifficultyToTargetMonotonic(t *testing.T) {
	t1, err := DifficultyToTarget(1)
	if err != nil {
		t.Fatalf("DifficultyToTarget(1): %v", err)
	}
	t2, err := DifficultyToTarget(1000)
	if err != nil {
		t.Fatalf("DifficultyToTarget(1000): %v", err)
	}
	// Higher difficulty => strictly smaller target (P8).
	b1 := t1.Bytes()
	b2 := t2.Bytes()
	if bytes.Compare(b2[:], b1[:]) >= 0 {
		t.Fatalf("expected target for difficulty 1000 to be strictly smaller "+
			"than for difficulty 1: got t1=%x t2=%x", b1, b2)
	}
}

func TestDifficultyToTargetRejectsNonPositive(t *testing.T) {
	if _, err := DifficultyToTarget(0); err == nil {
		t.Fatal("expected an error for zero difficulty")
	}
	if _, err := DifficultyToTarget(-5); err == nil {
		t.Fatal("expected an error for negative difficulty")
	}
}

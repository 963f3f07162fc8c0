package stratum

import (
	"testing"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
)

func testJob(t *testing.T) *JobTemplate {
	t.Helper()
	var work core.Work
	target := core.MaxTarget() // block target: anything meets it.
	return NewJobTemplate("job-1", work, target)
}

func TestValidateShareStaleJob(t *testing.T) {
	s := NewSession([4]byte{1, 2, 3, 4})
	s.SetCurrentJob("job-1")
	job := testJob(t)

	outcome, _, _ := s.ValidateShare("job-0", [4]byte{}, [4]byte{}, 0,
		core.MaxTarget(), job)
	if outcome != ShareRejectedStale {
		t.Fatalf("outcome = %v, want ShareRejectedStale", outcome)
	}
}

func TestValidateShareDuplicate(t *testing.T) {
	s := NewSession([4]byte{1, 2, 3, 4})
	// An arbitrarily low difficulty clamps the session target to MaxTarget,
	// so the share is guaranteed to pass the session-level check regardless
	// of what the splice actually hashes to.
	if err := s.SetDifficulty(1e-30); err != nil {
		t.Fatalf("SetDifficulty: %v", err)
	}
	s.SetCurrentJob("job-1")
	job := testJob(t)
	first, _, _ := s.ValidateShare("job-1", [4]byte{}, [4]byte{}, 0,
		core.MaxTarget(), job)
	if first == ShareRejectedStale {
		t.Fatalf("unexpected stale rejection: %v", first)
	}

	second, _, _ := s.ValidateShare("job-1", [4]byte{}, [4]byte{}, 0,
		core.MaxTarget(), job)
	if second != ShareRejectedDuplicate {
		t.Fatalf("outcome = %v, want ShareRejectedDuplicate", second)
	}
}

func TestValidateShareLowDifficulty(t *testing.T) {
	s := NewSession([4]byte{1, 2, 3, 4})
	// Difficulty so high the session target is far smaller than any
	// arbitrary hash is likely to meet.
	if err := s.SetDifficulty(1e30); err != nil {
		t.Fatalf("SetDifficulty: %v", err)
	}
	s.SetCurrentJob("job-1")
	job := testJob(t)

	outcome, _, _ := s.ValidateShare("job-1", [4]byte{9, 9, 9, 9}, [4]byte{},
		1, core.MaxTarget(), job)
	if outcome != ShareRejectedLowDifficulty {
		t.Fatalf("outcome = %v, want ShareRejectedLowDifficulty", outcome)
	}
}

func TestValidateShareMeetsBlockTarget(t *testing.T) {
	s := NewSession([4]byte{1, 2, 3, 4})
	// As above: force the session-level check to always pass so only the
	// block-target comparison is actually being exercised.
	if err := s.SetDifficulty(1e-30); err != nil {
		t.Fatalf("SetDifficulty: %v", err)
	}
	s.SetCurrentJob("job-1")
	job := testJob(t)

	// MaxTarget as the block target forces a block-level accept once the
	// session-level check passes.
	outcome, _, _ := s.ValidateShare("job-1", [4]byte{5, 6, 7, 8}, [4]byte{},
		2, core.MaxTarget(), job)
	if outcome != ShareAcceptedMeetsBlockTarget {
		t.Fatalf("outcome = %v, want ShareAcceptedMeetsBlockTarget", outcome)
	}
}

func TestSessionStateMachine(t *testing.T) {
	s := NewSession([4]byte{})
	if s.State() != StateConnected {
		t.Fatalf("initial state = %v, want Connected", s.State())
	}
	s.MarkSubscribed()
	if s.State() != StateSubscribed {
		t.Fatalf("state = %v, want Subscribed", s.State())
	}
	s.Authorize("worker1")
	if s.State() != StateAuthorized {
		t.Fatalf("state = %v, want Authorized", s.State())
	}
	s.SetCurrentJob("job-1")
	if s.State() != StateActive {
		t.Fatalf("state = %v, want Active", s.State())
	}
	s.Close()
	if !s.Closed() {
		t.Fatal("expected session to report closed")
	}
}

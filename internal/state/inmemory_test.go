package state

import (
	"context"
	"testing"
)

func TestInMemorySessionRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	got, err := s.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("ActiveSession() error = %v", err)
	}
	if got != nil {
		t.Fatalf("ActiveSession() = %+v on empty store, want nil", got)
	}

	sess := &Session{
		ID:            "abc",
		Purpose:       "check mentions",
		Minutes:       10,
		CreatedAt:     1000,
		EndTime:       601000,
		AllowedTabIDs: []int{7},
		TargetURL:     "https://x.com/home",
		Status:        SessionActive,
	}
	if err := s.SaveActiveSession(ctx, sess); err != nil {
		t.Fatalf("SaveActiveSession() error = %v", err)
	}

	got, err = s.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("ActiveSession() error = %v", err)
	}
	if got.ID != "abc" || got.Purpose != "check mentions" || got.EndTime != 601000 {
		t.Fatalf("ActiveSession() = %+v", got)
	}

	// Reads are snapshots: mutating them must not leak into the store.
	got.AllowedTabIDs = append(got.AllowedTabIDs, 9)
	again, _ := s.ActiveSession(ctx)
	if len(again.AllowedTabIDs) != 1 {
		t.Fatalf("stored AllowedTabIDs = %v, want isolated from caller mutation", again.AllowedTabIDs)
	}

	if err := s.ClearActiveSession(ctx); err != nil {
		t.Fatalf("ClearActiveSession() error = %v", err)
	}
	got, _ = s.ActiveSession(ctx)
	if got != nil {
		t.Fatalf("ActiveSession() after clear = %+v, want nil", got)
	}
}

func TestInMemoryPendingRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	pending, err := s.PendingNavigations(ctx)
	if err != nil {
		t.Fatalf("PendingNavigations() error = %v", err)
	}
	if pending == nil || len(pending) != 0 {
		t.Fatalf("PendingNavigations() = %v, want empty non-nil map", pending)
	}

	pending[7] = PendingNavigation{TargetURL: "https://x.com/home", CreatedAt: 1000}
	if err := s.SavePendingNavigations(ctx, pending); err != nil {
		t.Fatalf("SavePendingNavigations() error = %v", err)
	}

	got, _ := s.PendingNavigations(ctx)
	if got[7].TargetURL != "https://x.com/home" {
		t.Fatalf("entry = %+v", got[7])
	}

	// The returned map is a copy.
	delete(got, 7)
	again, _ := s.PendingNavigations(ctx)
	if _, ok := again[7]; !ok {
		t.Fatalf("stored map mutated through caller copy")
	}
}

func TestEnsureShapeInitializesPending(t *testing.T) {
	s := &InMemoryStore{}
	ctx := context.Background()
	if err := s.EnsureShape(ctx); err != nil {
		t.Fatalf("EnsureShape() error = %v", err)
	}
	pending, err := s.PendingNavigations(ctx)
	if err != nil {
		t.Fatalf("PendingNavigations() error = %v", err)
	}
	if pending == nil {
		t.Fatalf("PendingNavigations() = nil after EnsureShape")
	}
}

func TestSessionClone(t *testing.T) {
	var nilSess *Session
	if nilSess.Clone() != nil {
		t.Fatalf("Clone() of nil session should be nil")
	}

	sess := &Session{ID: "abc", AllowedTabIDs: []int{7, 9}}
	c := sess.Clone()
	c.AllowedTabIDs[0] = 99
	if sess.AllowedTabIDs[0] != 7 {
		t.Fatalf("Clone() shares the tab slice")
	}
}

func TestSessionAllows(t *testing.T) {
	var nilSess *Session
	if nilSess.Allows(7) {
		t.Fatalf("nil session must not allow any tab")
	}
	sess := &Session{AllowedTabIDs: []int{7, 9}}
	if !sess.Allows(9) {
		t.Fatalf("Allows(9) = false, want true")
	}
	if sess.Allows(11) {
		t.Fatalf("Allows(11) = true, want false")
	}
}

func TestSessionExpiredAt(t *testing.T) {
	sess := &Session{EndTime: 1000}
	if sess.ExpiredAt(999) {
		t.Fatalf("expired before endTime")
	}
	if !sess.ExpiredAt(1000) {
		t.Fatalf("not expired exactly at endTime")
	}
	if !sess.ExpiredAt(1001) {
		t.Fatalf("not expired after endTime")
	}
}

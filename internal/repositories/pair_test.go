package repositories

import "testing"

func TestSortPairOrdersParticipants(t *testing.T) {
	u1, u2, n1, n2 := sortPair("bob", "alice", "Bob B", "Alice A")
	if u1 != "alice" || u2 != "bob" {
		t.Fatalf("expected alice/bob, got %s/%s", u1, u2)
	}
	if n1 != "Alice A" || n2 != "Bob B" {
		t.Fatalf("expected names to follow their ids, got %s/%s", n1, n2)
	}
}

func TestSortPairCommutative(t *testing.T) {
	a1, a2, _, _ := sortPair("alice", "bob", "Alice A", "Bob B")
	b1, b2, _, _ := sortPair("bob", "alice", "Bob B", "Alice A")
	if a1 != b1 || a2 != b2 {
		t.Fatalf("expected same pair in both directions, got %s/%s vs %s/%s", a1, a2, b1, b2)
	}
}

func TestIsPair(t *testing.T) {
	if !isPair("alice", "bob", "alice", "bob") {
		t.Fatalf("expected forward pair to match")
	}
	if !isPair("bob", "alice", "alice", "bob") {
		t.Fatalf("expected reversed pair to match")
	}
	if isPair("alice", "carol", "alice", "bob") {
		t.Fatalf("expected outsider pair to be rejected")
	}
	if isPair("alice", "alice", "alice", "bob") {
		t.Fatalf("expected self pair to be rejected")
	}
}

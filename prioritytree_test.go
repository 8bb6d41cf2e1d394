package http2

import "testing"

func TestPriorityTreeEffectiveWeightDefaultsTo16(t *testing.T) {
	pt := newPriorityTree()
	if w := pt.effectiveWeight(1); w != 16 {
		t.Fatalf("expected default weight 16 for an untracked stream, got %d", w)
	}
}

func TestPriorityTreeAddAndWeight(t *testing.T) {
	pt := newPriorityTree()
	pt.add(1, 0, 15, false)
	// stored weight is wire-encoded (0-255); effectiveWeight reports RFC 7540 §5.3.2's 1-256.
	if w := pt.effectiveWeight(1); w != 16 {
		t.Fatalf("expected effective weight 16, got %d", w)
	}
}

func TestPriorityTreeSelfDependencyRejected(t *testing.T) {
	pt := newPriorityTree()
	pt.add(1, 0, 15, false)
	if err := pt.reprioritize(1, 1, 15, false); err == nil {
		t.Fatal("expected an error when a stream depends on itself")
	}
}

func TestPriorityTreeRemoveReparentsChildren(t *testing.T) {
	pt := newPriorityTree()
	pt.add(1, 0, 15, false)
	pt.add(3, 1, 15, false)
	pt.add(5, 1, 15, false)

	pt.remove(1)

	child3 := pt.nodes[3]
	child5 := pt.nodes[5]
	if child3.dependency != 0 || child5.dependency != 0 {
		t.Fatalf("expected streams 3 and 5 reparented to 0 after removing 1, got deps %d and %d",
			child3.dependency, child5.dependency)
	}
}

func TestPriorityTreeExclusiveReparentingMovesSiblingsUnderNewChild(t *testing.T) {
	pt := newPriorityTree()
	pt.add(1, 0, 15, false)
	pt.add(3, 1, 15, false)
	pt.add(5, 1, 15, false)

	// Stream 7 becomes an exclusive child of 1: existing children of 1 (3, 5) move under 7.
	pt.add(7, 0, 15, false)
	if err := pt.reprioritize(7, 1, 15, true); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	parent := pt.nodes[1]
	if len(parent.children) != 1 || parent.children[0] != 7 {
		t.Fatalf("expected stream 1's only child to be 7, got %v", parent.children)
	}
	if pt.nodes[3].dependency != 7 || pt.nodes[5].dependency != 7 {
		t.Fatalf("expected streams 3 and 5 reparented onto 7, got deps %d and %d",
			pt.nodes[3].dependency, pt.nodes[5].dependency)
	}
}

func TestPriorityTreeCycleReparentsOntoFormerParent(t *testing.T) {
	pt := newPriorityTree()
	pt.add(1, 0, 15, false)
	pt.add(3, 1, 15, false)
	pt.add(5, 3, 15, false)

	// Make 1 (the root of this chain) depend on 5, one of its own descendants. Per RFC 7540
	// §5.3.1, 5 is first moved to depend on 1's former parent (0) before 1 takes 5 as parent.
	if err := pt.reprioritize(1, 5, 15, false); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if pt.nodes[1].dependency != 5 {
		t.Fatalf("expected stream 1 to now depend on 5, got %d", pt.nodes[1].dependency)
	}
	if pt.nodes[5].dependency != 0 {
		t.Fatalf("expected stream 5 moved to depend on 1's former parent (0), got %d", pt.nodes[5].dependency)
	}
}

func TestSessionPriorityTreeDisabledByDefault(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(t, transport, true)
	if s.priTree != nil {
		t.Fatal("expected priTree to be nil unless Config.EnablePriorityTree is set")
	}
}

func TestSessionPriorityTreeEnabled(t *testing.T) {
	transport := &fakeTransport{}
	cfg := DefaultConfig()
	cfg.EnablePriorityTree = true
	s, err := NewSession(transport, cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if s.priTree == nil {
		t.Fatal("expected priTree to be non-nil when Config.EnablePriorityTree is set")
	}
}

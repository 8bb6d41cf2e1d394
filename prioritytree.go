package http2

import "sync"

// priorityTree tracks the RFC 7540 §5.3 stream dependency tree: which streams depend on which,
// their relative weights, and exclusive reparenting. It is an opt-in refinement over the
// baseline behavior (each Stream merely remembers its own dependency/weight/exclusive triple,
// which is all spec §4.1 requires) — enable it via Config.EnablePriorityTree when a caller wants
// cycle detection and exclusive-reparenting bookkeeping across the whole stream set, e.g. to
// drive an actual weighted output scheduler.
//
// Grounded on MiraiMindz-watt/shockwave/pkg/shockwave/http2/connection.go's PriorityTree/
// PriorityNode, adapted onto this repo's Stream/Session types and error taxonomy (a
// self-dependency is a StreamError here, not a sentinel the caller must compare against; a
// cycle is broken by reparenting, not rejected).
type priorityTree struct {
	mu    sync.Mutex
	nodes map[uint32]*priorityNode
}

type priorityNode struct {
	id         uint32
	weight     uint8
	dependency uint32
	exclusive  bool
	children   []uint32
}

func newPriorityTree() *priorityTree {
	return &priorityTree{nodes: make(map[uint32]*priorityNode)}
}

// add registers a newly opened stream in the tree with its initial priority.
func (pt *priorityTree) add(id, dependency uint32, weight uint8, exclusive bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	node := &priorityNode{id: id, weight: weight, dependency: dependency, exclusive: exclusive}
	pt.nodes[id] = node
	if parent, ok := pt.nodes[dependency]; ok && dependency != 0 {
		parent.children = append(parent.children, id)
	}
}

// remove deletes a closed stream from the tree, reparenting its children onto its own former
// parent per RFC 7540 §5.3.4.
func (pt *priorityTree) remove(id uint32) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	node, ok := pt.nodes[id]
	if !ok {
		return
	}
	pt.detachFromParent(node)
	for _, childID := range node.children {
		if child, ok := pt.nodes[childID]; ok {
			child.dependency = node.dependency
			if node.dependency != 0 {
				if newParent, ok := pt.nodes[node.dependency]; ok {
					newParent.children = append(newParent.children, childID)
				}
			}
		}
	}
	delete(pt.nodes, id)
}

// reprioritize updates an existing stream's dependency/weight/exclusive triple, detecting and
// breaking RFC 7540 §5.3.1 dependency cycles by reparenting. Returns a *StreamError
// (ErrCodeProtocol) only on a self-dependency, a caller error rather than an internal fault.
func (pt *priorityTree) reprioritize(id, dependency uint32, weight uint8, exclusive bool) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	node, ok := pt.nodes[id]
	if !ok {
		// Stream never opened (e.g. a priority-only HEADERS for an id the session never
		// tracked); nothing to reparent.
		return nil
	}
	if id == dependency {
		return NewStreamError(id, ErrCodeProtocol)
	}

	if dependency != 0 {
		// RFC 7540 §5.3.1: "If a stream is made dependent on one of its own dependencies, the
		// formerly dependent stream is first moved to be dependent on the reprioritized
		// stream's previous parent." Walk the chain from the new parent upward; if we reach
		// id itself, the new parent is a descendant of id and must be reparented onto id's old
		// parent before id takes dependency as its own new parent.
		if descendant, ok := pt.nodes[dependency]; ok && pt.isDescendant(id, dependency) {
			pt.detachFromParent(descendant)
			descendant.dependency = node.dependency
			if node.dependency != 0 {
				if grandparent, ok := pt.nodes[node.dependency]; ok {
					grandparent.children = append(grandparent.children, dependency)
				}
			}
		}
	}

	pt.detachFromParent(node)
	node.weight, node.dependency, node.exclusive = weight, dependency, exclusive

	parent, ok := pt.nodes[dependency]
	if !ok || dependency == 0 {
		return nil
	}
	if exclusive {
		siblings := parent.children
		parent.children = []uint32{id}
		for _, childID := range siblings {
			if childID == id {
				continue
			}
			if child, ok := pt.nodes[childID]; ok {
				child.dependency = id
				node.children = append(node.children, childID)
			}
		}
		return nil
	}
	parent.children = append(parent.children, id)
	return nil
}

// isDescendant reports whether candidate is in the subtree below ancestor, found by walking
// children links down from ancestor.
func (pt *priorityTree) isDescendant(ancestor, candidate uint32) bool {
	node, ok := pt.nodes[ancestor]
	if !ok {
		return false
	}
	for _, childID := range node.children {
		if childID == candidate {
			return true
		}
		if pt.isDescendant(childID, candidate) {
			return true
		}
	}
	return false
}

func (pt *priorityTree) detachFromParent(node *priorityNode) {
	if node.dependency == 0 {
		return
	}
	parent, ok := pt.nodes[node.dependency]
	if !ok {
		return
	}
	for i, childID := range parent.children {
		if childID == node.id {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
}

// effectiveWeight returns the RFC 7540 §5.3.2 weight (1-256) for a tracked stream, or the
// protocol default (16) if the tree doesn't know about it.
func (pt *priorityTree) effectiveWeight(id uint32) uint32 {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	node, ok := pt.nodes[id]
	if !ok {
		return 16
	}
	return uint32(node.weight) + 1
}

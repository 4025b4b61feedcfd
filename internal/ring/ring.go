// Package ring implements the pick-rotation ring: a circular successor relation
// over the active memberships of one club, plus the current-picker pointer.
//
// A Ring is a plain value owned by one transaction. Store adapters load it,
// the rotation and membership services mutate it, and the adapters persist the
// difference between the loaded and the mutated ring.
package ring

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrEmpty     = errors.New("ring is empty")
	ErrDuplicate = errors.New("node already on ring")
	ErrUnknown   = errors.New("node not on ring")
	ErrBlankNode = errors.New("node id is empty")
)

// Ring is a successor map plus the current picker.
type Ring struct {
	next    map[string]string
	current string
}

// New builds a ring from loaded successor edges. The edges are copied.
func New(next map[string]string, current string) *Ring {
	r := &Ring{next: make(map[string]string, len(next)), current: current}
	for k, v := range next {
		r.next[k] = v
	}
	return r
}

// FromOrder builds a single cycle visiting order in sequence. current must be
// one of the nodes; an empty current selects order[0].
func FromOrder(order []string, current string) (*Ring, error) {
	r := &Ring{next: map[string]string{}}
	if err := r.Replace(order); err != nil {
		return nil, err
	}
	if current != "" {
		if !r.Contains(current) {
			return nil, fmt.Errorf("current %q: %w", current, ErrUnknown)
		}
		r.current = current
	}
	return r, nil
}

// Clone returns an independent copy.
func (r *Ring) Clone() *Ring {
	return New(r.next, r.current)
}

// Len is the number of nodes on the ring.
func (r *Ring) Len() int { return len(r.next) }

// Current is the current picker, or "" when the ring is empty.
func (r *Ring) Current() string { return r.current }

// Contains reports whether id is on the ring.
func (r *Ring) Contains(id string) bool {
	_, ok := r.next[id]
	return ok
}

// Next returns id's successor.
func (r *Ring) Next(id string) (string, bool) {
	n, ok := r.next[id]
	return n, ok
}

// Prev returns id's predecessor.
func (r *Ring) Prev(id string) (string, bool) {
	if !r.Contains(id) {
		return "", false
	}
	for from, to := range r.next {
		if to == id {
			return from, true
		}
	}
	return "", false
}

// Edges returns a copy of the successor map.
func (r *Ring) Edges() map[string]string {
	out := make(map[string]string, len(r.next))
	for k, v := range r.next {
		out[k] = v
	}
	return out
}

// Order walks the ring starting at the current picker. On a malformed ring the
// walk stops after Len steps or at the first missing edge.
func (r *Ring) Order() []string {
	if r.current == "" || !r.Contains(r.current) {
		return nil
	}
	order := make([]string, 0, len(r.next))
	id := r.current
	for range len(r.next) {
		order = append(order, id)
		n, ok := r.next[id]
		if !ok || n == r.current {
			break
		}
		id = n
	}
	return order
}

// Advance moves the current picker to its successor and returns it. On a
// one-node ring the pointer stays where it is.
func (r *Ring) Advance() (string, error) {
	if r.current == "" {
		return "", ErrEmpty
	}
	n, ok := r.next[r.current]
	if !ok {
		return "", fmt.Errorf("current %q: %w", r.current, ErrUnknown)
	}
	r.current = n
	return n, nil
}

// SpliceIn inserts id immediately before the current picker, so a newcomer
// waits for everyone already queued in this round. An empty ring becomes a
// self-loop with id as current picker.
func (r *Ring) SpliceIn(id string) error {
	if id == "" {
		return ErrBlankNode
	}
	if r.Contains(id) {
		return fmt.Errorf("%q: %w", id, ErrDuplicate)
	}
	if r.current == "" {
		r.next[id] = id
		r.current = id
		return nil
	}
	pred, ok := r.Prev(r.current)
	if !ok {
		return fmt.Errorf("predecessor of %q: %w", r.current, ErrUnknown)
	}
	r.next[pred] = id
	r.next[id] = r.current
	return nil
}

// SpliceOut removes id, linking its predecessor to its successor. If id was the
// current picker the pointer moves to the successor in the same step. Removing
// the last node empties the ring.
func (r *Ring) SpliceOut(id string) error {
	succ, ok := r.next[id]
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrUnknown)
	}
	if succ == id {
		delete(r.next, id)
		r.current = ""
		return nil
	}
	pred, ok := r.Prev(id)
	if !ok {
		return fmt.Errorf("predecessor of %q: %w", id, ErrUnknown)
	}
	r.next[pred] = succ
	delete(r.next, id)
	if r.current == id {
		r.current = succ
	}
	return nil
}

// Replace discards every edge and links order into a single cycle. The current
// picker is kept when it is still on the new ring, otherwise it becomes order[0].
func (r *Ring) Replace(order []string) error {
	seen := make(map[string]struct{}, len(order))
	for _, id := range order {
		if id == "" {
			return ErrBlankNode
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%q: %w", id, ErrDuplicate)
		}
		seen[id] = struct{}{}
	}

	next := make(map[string]string, len(order))
	for i, id := range order {
		next[id] = order[(i+1)%len(order)]
	}
	r.next = next

	if len(order) == 0 {
		r.current = ""
		return nil
	}
	if _, ok := seen[r.current]; !ok {
		r.current = order[0]
	}
	return nil
}

// Validate checks that the ring is one cycle covering exactly active and that
// the current picker is on it.
func (r *Ring) Validate(active []string) error {
	if len(active) == 0 {
		if len(r.next) != 0 || r.current != "" {
			return fmt.Errorf("ring has %d nodes but no active members", len(r.next))
		}
		return nil
	}
	if len(r.next) != len(active) {
		return fmt.Errorf("ring has %d nodes, want %d", len(r.next), len(active))
	}
	for _, id := range active {
		if !r.Contains(id) {
			return fmt.Errorf("active member %q missing from ring", id)
		}
	}
	if !r.Contains(r.current) {
		return fmt.Errorf("current picker %q not on ring", r.current)
	}

	visited := make(map[string]struct{}, len(r.next))
	id := r.current
	for range len(r.next) {
		if _, again := visited[id]; again {
			return fmt.Errorf("sub-cycle at %q", id)
		}
		visited[id] = struct{}{}
		n, ok := r.next[id]
		if !ok {
			return fmt.Errorf("dangling edge from %q", id)
		}
		id = n
	}
	if id != r.current {
		return fmt.Errorf("walk from %q did not return after %d hops", r.current, len(r.next))
	}
	return nil
}

// Changes is the edge-level difference between two rings.
type Changes struct {
	// Detach lists nodes whose outgoing edge must be removed, sorted.
	Detach []string
	// Attach maps nodes to their new successor.
	Attach map[string]string
	// CurrentChanged is set when the current picker moved.
	CurrentChanged bool
	Current        string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Detach) == 0 && len(c.Attach) == 0 && !c.CurrentChanged
}

// AttachEdges returns the attach set as parallel, id-sorted slices.
func (c Changes) AttachEdges() (from, to []string) {
	from = make([]string, 0, len(c.Attach))
	for id := range c.Attach {
		from = append(from, id)
	}
	sort.Strings(from)
	to = make([]string, len(from))
	for i, id := range from {
		to[i] = c.Attach[id]
	}
	return from, to
}

// Diff computes what must be detached and attached to turn before into after.
// Applying it as "detach if present, then attach" is idempotent.
func Diff(before, after *Ring) Changes {
	c := Changes{Attach: map[string]string{}}
	for id, n := range before.next {
		if an, ok := after.next[id]; !ok || an != n {
			c.Detach = append(c.Detach, id)
		}
	}
	for id, n := range after.next {
		if bn, ok := before.next[id]; !ok || bn != n {
			c.Attach[id] = n
		}
	}
	sort.Strings(c.Detach)
	if before.current != after.current {
		c.CurrentChanged = true
	}
	c.Current = after.current
	return c
}

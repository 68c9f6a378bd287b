package scheduler

import (
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/btree"
)

// AvailableType tells how an already persisted reservation may be used by
// the current attempt.
type AvailableType string

const (
	// Reusable reservations belong to a reused allocation and are shared
	// through an existing reservation.
	Reusable AvailableType = "REUSABLE"
	// Reallocatable reservations belong to the request being allocated and
	// do not count as conflicts.
	Reallocatable AvailableType = "REALLOCATABLE"
)

// State is the transactional state of one allocation attempt. Every
// mutation is journaled so a savepoint can undo it.
type State struct {
	allocated []*types.Reservation
	byTarget  map[string]*btree.BTreeG[*types.Reservation]

	available      []*types.Reservation
	availableTypes map[string]AvailableType
	consumed       map[string]bool

	referenced map[string]bool

	journal []func()
}

// NewState creates an empty state
func NewState() *State {
	return &State{
		byTarget:       make(map[string]*btree.BTreeG[*types.Reservation]),
		availableTypes: make(map[string]AvailableType),
		consumed:       make(map[string]bool),
		referenced:     make(map[string]bool),
	}
}

func lessBySlot(a, b *types.Reservation) bool {
	if !a.Slot.Start.Equal(b.Slot.Start) {
		return a.Slot.Start.Before(b.Slot.Start)
	}
	return a.ID < b.ID
}

// AddAllocated registers a reservation created by the attempt
func (s *State) AddAllocated(r *types.Reservation) {
	s.allocated = append(s.allocated, r)
	if r.TargetID != "" {
		tree, ok := s.byTarget[r.TargetID]
		if !ok {
			tree = btree.NewG(16, lessBySlot)
			s.byTarget[r.TargetID] = tree
		}
		tree.ReplaceOrInsert(r)
	}
	n := len(s.allocated) - 1
	s.journal = append(s.journal, func() {
		s.allocated = s.allocated[:n]
		if tree, ok := s.byTarget[r.TargetID]; ok {
			tree.Delete(r)
		}
	})
}

// Allocated returns the reservations created by the attempt in creation order
func (s *State) Allocated() []*types.Reservation {
	result := make([]*types.Reservation, len(s.allocated))
	copy(result, s.allocated)
	return result
}

// AllocatedOverlapping returns in-attempt reservations on target during slot
func (s *State) AllocatedOverlapping(targetID string, slot types.Interval) []*types.Reservation {
	tree, ok := s.byTarget[targetID]
	if !ok {
		return nil
	}
	var result []*types.Reservation
	pivot := &types.Reservation{Slot: types.Interval{Start: slot.End}}
	tree.AscendLessThan(pivot, func(r *types.Reservation) bool {
		if r.Slot.Overlaps(slot) {
			result = append(result, r)
		}
		return true
	})
	return result
}

// AddAvailable offers a persisted reservation to the attempt. Only the
// reservation itself is added; callers walk the tree.
func (s *State) AddAvailable(r *types.Reservation, availableType AvailableType) {
	if _, ok := s.availableTypes[r.ID]; ok {
		return
	}
	s.available = append(s.available, r)
	s.availableTypes[r.ID] = availableType
	n := len(s.available) - 1
	s.journal = append(s.journal, func() {
		s.available = s.available[:n]
		delete(s.availableTypes, r.ID)
	})
}

// Available returns unconsumed available reservations of availableType
// accepted by match, in the order they were offered.
func (s *State) Available(availableType AvailableType, match func(*types.Reservation) bool) []*types.Reservation {
	var result []*types.Reservation
	for _, r := range s.available {
		if s.availableTypes[r.ID] != availableType || s.consumed[r.ID] {
			continue
		}
		if match == nil || match(r) {
			result = append(result, r)
		}
	}
	return result
}

// IsReallocatable reports whether id was offered as REALLOCATABLE
func (s *State) IsReallocatable(id string) bool {
	return s.availableTypes[id] == Reallocatable
}

// Consume takes an available reservation so it is not offered again
func (s *State) Consume(id string) {
	if s.consumed[id] {
		return
	}
	s.consumed[id] = true
	s.journal = append(s.journal, func() { delete(s.consumed, id) })
}

// Reference marks a resource as requested by the attempt. It returns false
// when the resource was already referenced.
func (s *State) Reference(resourceID string) bool {
	if s.referenced[resourceID] {
		return false
	}
	s.referenced[resourceID] = true
	s.journal = append(s.journal, func() { delete(s.referenced, resourceID) })
	return true
}

// IsReferenced reports whether the resource was requested by the attempt
func (s *State) IsReferenced(resourceID string) bool {
	return s.referenced[resourceID]
}

// Savepoint marks the current position in the journal
func (s *State) Savepoint() *Savepoint {
	return &Savepoint{state: s, mark: len(s.journal)}
}

// Savepoint allows undoing every state mutation made after it was taken
type Savepoint struct {
	state *State
	mark  int
	done  bool
}

// Revert undoes the mutations made after the savepoint, newest first
func (sp *Savepoint) Revert() {
	if sp.done {
		return
	}
	sp.done = true
	journal := sp.state.journal
	for i := len(journal) - 1; i >= sp.mark; i-- {
		journal[i]()
	}
	sp.state.journal = journal[:sp.mark]
}

// Destroy keeps the mutations made after the savepoint
func (sp *Savepoint) Destroy() {
	sp.done = true
}

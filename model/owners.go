package model

import "github.com/ethereum/go-ethereum/common"

// MaxOwners caps the multisig owner set.
const MaxOwners = 50

// OwnerSet is a dense slice of owners plus an address->slot index. Removal
// moves the last owner into the freed slot, so iteration order is not stable
// across removals.
type OwnerSet struct {
	owners []common.Address
	index  map[common.Address]int
}

func NewOwnerSet(owners ...common.Address) *OwnerSet {
	s := &OwnerSet{index: make(map[common.Address]int, len(owners))}
	for _, o := range owners {
		s.Add(o)
	}
	return s
}

func (s *OwnerSet) Len() int { return len(s.owners) }

func (s *OwnerSet) Contains(a common.Address) bool {
	_, ok := s.index[a]
	return ok
}

// Add appends a and reports whether it was added.
func (s *OwnerSet) Add(a common.Address) bool {
	if s.index == nil {
		s.index = make(map[common.Address]int)
	}
	if _, ok := s.index[a]; ok {
		return false
	}
	s.index[a] = len(s.owners)
	s.owners = append(s.owners, a)
	return true
}

// Remove swaps the last owner into a's slot and truncates.
func (s *OwnerSet) Remove(a common.Address) bool {
	i, ok := s.index[a]
	if !ok {
		return false
	}
	last := len(s.owners) - 1
	if i != last {
		moved := s.owners[last]
		s.owners[i] = moved
		s.index[moved] = i
	}
	s.owners = s.owners[:last]
	delete(s.index, a)
	return true
}

// List returns a copy of the owners in slot order.
func (s *OwnerSet) List() []common.Address {
	out := make([]common.Address, len(s.owners))
	copy(out, s.owners)
	return out
}

func (s *OwnerSet) Clone() *OwnerSet {
	if s == nil {
		return NewOwnerSet()
	}
	return NewOwnerSet(s.owners...)
}

package schedule

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store errors. Rejected operations leave the store unchanged.
var (
	ErrAtCapacity      = fmt.Errorf("schedule already has %d blocks", MaxBlocks)
	ErrLastBlock       = errors.New("the last schedule block cannot be removed")
	ErrIndexOutOfRange = errors.New("schedule block index out of range")
	ErrInvalidDay      = errors.New("day must be between 0 (Monday) and 6 (Sunday)")
	ErrInvalidField    = errors.New("time field must be start or end")
	ErrDirty           = errors.New("schedule has unsaved local edits")
)

// EditorState is the two-state machine of the schedule editor.
type EditorState int

const (
	// Clean means current matches saved and server data may overwrite it.
	Clean EditorState = iota
	// Dirty means local edits are pending and server data is ignored.
	Dirty
)

// String returns a human-readable name for the state.
func (s EditorState) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s EditorState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TimeField selects which end of a block SetTime edits.
type TimeField string

const (
	FieldStart TimeField = "start"
	FieldEnd   TimeField = "end"
)

// Store owns the edited block list and the last persisted snapshot.
// All mutation goes through its methods so the day-set canonical form holds.
type Store struct {
	mu      sync.RWMutex
	current []Block
	saved   []Block
}

// NewStore creates a clean store holding one default block.
func NewStore() *Store {
	return &Store{
		current: []Block{DefaultBlock()},
		saved:   []Block{DefaultBlock()},
	}
}

// Blocks returns a copy of the current blocks.
func (s *Store) Blocks() []Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBlocks(s.current)
}

// Saved returns a copy of the last persisted blocks.
func (s *Store) Saved() []Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBlocks(s.saved)
}

// Len returns the number of current blocks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.current)
}

// Add appends a default block.
func (s *Store) Add() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.current) >= MaxBlocks {
		return ErrAtCapacity
	}
	s.current = append(s.current, DefaultBlock())
	return nil
}

// Remove deletes the block at index. The last block is protected.
func (s *Store) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	if len(s.current) <= 1 {
		return ErrLastBlock
	}
	s.current = append(s.current[:index:index], s.current[index+1:]...)
	return nil
}

// ToggleEnabled flips the enabled flag of the block at index.
func (s *Store) ToggleEnabled(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.current[index].Enabled = !s.current[index].Enabled
	return nil
}

// SetTime sets the start or end time of the block at index.
func (s *Store) SetTime(index int, field TimeField, value string) error {
	if _, err := ParseHHMM(value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	switch field {
	case FieldStart:
		s.current[index].StartHHMM = value
	case FieldEnd:
		s.current[index].EndHHMM = value
	default:
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	return nil
}

// ToggleDay flips one weekday of the block at index, keeping the day set
// canonical: a full week collapses to the sentinel, removing the last day
// leaves an explicit empty set.
func (s *Store) ToggleDay(index, day int) error {
	if day < 0 || day >= DaysPerWeek {
		return fmt.Errorf("%w: %d", ErrInvalidDay, day)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.current[index].Days = s.current[index].Days.Toggle(day)
	return nil
}

// IsDirty reports whether current differs from saved.
func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !blocksEqual(s.current, s.saved)
}

// State returns the editor state derived from IsDirty.
func (s *Store) State() EditorState {
	if s.IsDirty() {
		return Dirty
	}
	return Clean
}

// MarkSaved records current as persisted.
func (s *Store) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = cloneBlocks(s.current)
}

// Commit records posted as persisted. base is the saved baseline from
// before the save started. Edits made after posted was taken keep the store
// dirty; a store that was reverted to base meanwhile follows posted and
// ends clean.
func (s *Store) Commit(posted, base []Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if blocksEqual(s.current, base) {
		s.current = cloneBlocks(posted)
	}
	s.saved = cloneBlocks(posted)
}

// Discard drops local edits and restores the saved blocks.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = cloneBlocks(s.saved)
}

// AdoptServerSnapshot replaces both current and saved with the server's
// blocks. It refuses with ErrDirty while local edits are pending. Blocks
// beyond MaxBlocks are dropped.
func (s *Store) AdoptServerSnapshot(blocks []ServerBlock) error {
	if len(blocks) > MaxBlocks {
		log.Warn().Int("blocks", len(blocks)).Int("max", MaxBlocks).Msg("Server schedule has too many blocks, keeping the first ones")
		blocks = blocks[:MaxBlocks]
	}
	adopted := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		adopted = append(adopted, b.Normalize())
	}
	if len(adopted) == 0 {
		adopted = append(adopted, DefaultBlock())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !blocksEqual(s.current, s.saved) {
		return ErrDirty
	}
	s.current = adopted
	s.saved = cloneBlocks(adopted)
	return nil
}

func (s *Store) checkIndex(index int) error {
	if index < 0 || index >= len(s.current) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return nil
}

package notes

import (
	"errors"
	"sync"
	"time"
)

// ErrNoRun is returned when nothing has been processed yet.
var ErrNoRun = errors.New("no playlist has been processed yet")

// Store keeps the latest run and its live progress. Beginning a run replaces the previous one.
type Store struct {
	mu        sync.RWMutex
	run       *Run
	progress  Progress
	updatedAt time.Time
}

// NewStore creates an empty store.
func NewStore() *Store { return &Store{} }

// Begin makes run the latest run.
func (s *Store) Begin(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = run
	s.progress = run.Progress()
	s.updatedAt = time.Now()
}

// Update records a progress snapshot for the current run. Snapshots of replaced runs are ignored.
func (s *Store) Update(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil || s.run.ID != p.RunID {
		return
	}
	s.progress = p
	s.updatedAt = time.Now()
}

// Finish records the terminal snapshot of run.
func (s *Store) Finish(run *Run) {
	s.Update(run.Progress())
}

// Latest returns the most recent run.
func (s *Store) Latest() (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return nil, ErrNoRun
	}
	return s.run, nil
}

// Status is what a status request reports.
type Status struct {
	Progress  Progress  `json:"progress"`
	UpdatedAt time.Time `json:"updated_at"`
	Summary   Summary   `json:"summary"`
}

// Status reports the latest progress snapshot plus the per-video overview.
func (s *Store) Status() (Status, error) {
	s.mu.RLock()
	run, p, at := s.run, s.progress, s.updatedAt
	s.mu.RUnlock()
	if run == nil {
		return Status{}, ErrNoRun
	}
	return Status{Progress: p, UpdatedAt: at, Summary: run.Summarize()}, nil
}

// Package merge implements the Merge Session mini-state-machine (spec
// §4.6): a user-scoped accumulator of inputs that, once committed,
// becomes a synthetic merge Task entering the normal lifecycle.
//
// The per-owner table mirrors the teacher's resource-manager shape
// (internal/transfer/manager.go: one mutex-guarded map keyed by a caller
// id, one handle struct per entry) rather than anything telegram- or
// media-specific.
package merge

import (
	"fmt"
	"sync"
	"time"

	"github.com/rescale-labs/taskorc/internal/constants"
	"github.com/rescale-labs/taskorc/internal/models"
)

// ErrAlreadyOpen is returned by Start when a session is already open for
// the owner; callers should report the existing session's status instead
// of treating this as a failure (spec §4.6 invariant).
var ErrAlreadyOpen = fmt.Errorf("merge session already open")

// Manager holds one MergeSession per owner id.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*models.MergeSession
}

// New constructs an empty session table.
func New() *Manager {
	return &Manager{sessions: make(map[int64]*models.MergeSession)}
}

// Start transitions None -> Open for owner. If a session is already open
// it is left untouched and returned alongside ErrAlreadyOpen so the caller
// can report its current status (spec §4.6: "a second start is a no-op
// returning status").
func (m *Manager) Start(owner int64, origin models.MessageRef) (*models.MergeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[owner]; ok && s.State == models.MergeOpen {
		return s, ErrAlreadyOpen
	}

	s := &models.MergeSession{
		OwnerID:   owner,
		State:     models.MergeOpen,
		Origin:    origin,
		UpdatedAt: now(),
	}
	m.sessions[owner] = s
	return s, nil
}

// Get returns the current session for owner, if any.
func (m *Manager) Get(owner int64) (*models.MergeSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[owner]
	return s, ok
}

// AddResult reports what Add did, since a reached-the-cap add auto-commits
// rather than erroring (spec §4.6 "auto-commit trigger").
type AddResult struct {
	Session       *models.MergeSession
	AutoCommitted bool
}

// Add appends input to owner's open session (spec §4.6 add). It rejects
// duplicates by message id or normalized URL, rejects once the session is
// full or the cumulative estimated size would exceed the cap, and
// auto-commits when the input that was just added brings the count to the
// hard limit.
func (m *Manager) Add(owner int64, input models.MergeInput) (AddResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[owner]
	if !ok || s.State != models.MergeOpen {
		return AddResult{}, fmt.Errorf("no open merge session for owner %d", owner)
	}

	for _, existing := range s.Inputs {
		if duplicate(existing, input) {
			return AddResult{}, fmt.Errorf("input already in session: %s", displayOf(input))
		}
	}

	if len(s.Inputs) >= constants.MergeSessionMaxInputs {
		return AddResult{}, fmt.Errorf("merge session full (%d/%d)", len(s.Inputs), constants.MergeSessionMaxInputs)
	}
	if s.EstimatedBytes()+input.EstSize > constants.MergeSessionMaxBytes {
		return AddResult{}, fmt.Errorf("adding %s would exceed the %d-byte session cap", displayOf(input), constants.MergeSessionMaxBytes)
	}

	s.Inputs = append(s.Inputs, input)
	s.UpdatedAt = now()

	if len(s.Inputs) == constants.MergeSessionMaxInputs {
		s.State = models.MergeCommitted
		return AddResult{Session: s, AutoCommitted: true}, nil
	}
	return AddResult{Session: s}, nil
}

// Commit transitions Open -> Committed (spec §4.6 commit). It requires at
// least 2 inputs and returns the resolved Plan the caller uses to build
// the synthetic merge Task.
func (m *Manager) Commit(owner int64, opts models.MergeOptions) (*models.MergeSession, *Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[owner]
	if !ok {
		return nil, nil, fmt.Errorf("no merge session for owner %d", owner)
	}
	if s.State != models.MergeOpen {
		return nil, nil, fmt.Errorf("merge session is %s, not open", s.State)
	}
	if len(s.Inputs) < 2 {
		return nil, nil, fmt.Errorf("need at least 2 inputs to merge, have %d", len(s.Inputs))
	}

	s.State = models.MergeCommitted
	s.UpdatedAt = now()

	plan := planFor(s.Inputs, opts)
	return s, plan, nil
}

// Cancel transitions Open -> Cancelled (spec §4.6 cancel). Already
// committed sessions are untouched, matching spec wording verbatim.
func (m *Manager) Cancel(owner int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[owner]
	if !ok || s.State != models.MergeOpen {
		return fmt.Errorf("no open merge session for owner %d", owner)
	}
	s.State = models.MergeCancelled
	s.UpdatedAt = now()
	delete(m.sessions, owner)
	return nil
}

// Forget removes a terminal (committed or cancelled) session from the
// table once its synthetic Task has been submitted; a caller holding a
// *models.MergeSession from Commit is free to keep using it after this.
func (m *Manager) Forget(owner int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[owner]; ok && s.State != models.MergeOpen {
		delete(m.sessions, owner)
	}
}

func duplicate(a, b models.MergeInput) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case models.MergeInputURL:
		return normalizeURL(a.URL) == normalizeURL(b.URL)
	default:
		return a.MessageID == b.MessageID
	}
}

func displayOf(in models.MergeInput) string {
	if in.DisplayName != "" {
		return in.DisplayName
	}
	if in.URL != "" {
		return in.URL
	}
	return fmt.Sprintf("message %d", in.MessageID)
}

func normalizeURL(u string) string {
	for len(u) > 0 && (u[len(u)-1] == '/' || u[len(u)-1] == ' ') {
		u = u[:len(u)-1]
	}
	return u
}

// now is a seam so tests can avoid relying on wall-clock ordering; callers
// never depend on nanosecond precision.
var now = time.Now

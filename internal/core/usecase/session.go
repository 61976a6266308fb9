package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
)

// Session is the explicit state record for one ingestion → extraction →
// validation cycle: the intake registry, the classified state committed by
// the last successful submission, and the result of the last successful
// validity check. All transitions replace state wholesale; nothing is
// persisted beyond process lifetime.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	items      []domain.IntakeItem
	classified *domain.ClassifiedState
	validity   *domain.ValidityResult

	submitting bool
	checking   bool
}

// BeginSubmit acquires the single-flight submission slot. A second
// concurrent submission for the same session fails fast instead of racing
// the first response.
func (s *Session) BeginSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return fmt.Errorf("submit batch: %w", domain.ErrOperationInProgress)
	}
	s.submitting = true
	return nil
}

func (s *Session) EndSubmit() {
	s.mu.Lock()
	s.submitting = false
	s.mu.Unlock()
}

// BeginCheck acquires the single-flight validity-check slot.
func (s *Session) BeginCheck() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checking {
		return fmt.Errorf("check validity: %w", domain.ErrOperationInProgress)
	}
	s.checking = true
	return nil
}

func (s *Session) EndCheck() {
	s.mu.Lock()
	s.checking = false
	s.mu.Unlock()
}

func (s *Session) appendItem(item domain.IntakeItem) {
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()
}

func (s *Session) removeItem(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.ID == itemID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// Snapshot returns a copy of the ordered working set. Submissions are built
// from a snapshot so registry mutations cannot race an in-flight request.
func (s *Session) Snapshot() []domain.IntakeItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.IntakeItem, len(s.items))
	copy(out, s.items)
	return out
}

// MarkItemFailed flags the first item whose display name matches. The
// extraction service reports rejected URL downloads by display name, not id.
func (s *Session) MarkItemFailed(name, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].Name == name {
			s.items[i].Status = domain.ItemFailed
			s.items[i].Error = message
			return true
		}
	}
	return false
}

// CommitClassified replaces the classified state after a fully successful
// extraction response and marks the submitted items done. The registry stays
// mutable while a submission is in flight, so only the items that were part
// of the dispatched snapshot transition; an item added mid-flight keeps its
// status until it is submitted itself.
func (s *Session) CommitClassified(state *domain.ClassifiedState, submittedIDs []string) {
	submitted := make(map[string]struct{}, len(submittedIDs))
	for _, id := range submittedIDs {
		submitted[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classified = state
	for i := range s.items {
		if _, ok := submitted[s.items[i].ID]; ok {
			s.items[i].Status = domain.ItemDone
			s.items[i].Error = ""
		}
	}
}

func (s *Session) Classified() *domain.ClassifiedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classified
}

// CommitValidity replaces the validity result. A failed check never reaches
// this point, so the prior result survives transient failures.
func (s *Session) CommitValidity(result *domain.ValidityResult) {
	s.mu.Lock()
	s.validity = result
	s.mu.Unlock()
}

func (s *Session) Validity() *domain.ValidityResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validity
}

// SessionManager holds all live sessions for this process.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

func (m *SessionManager) CreateSession(_ context.Context) (string, error) {
	session := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()
	return session.ID, nil
}

func (m *SessionManager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("resolve session %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	return session, nil
}

// Package journal mints and consumes journal entries: pending tree
// mutations not yet reflected in the storage table (spec.md §3).
// Grounded on the original's journal_manager.py plus the upstream
// token-minting step the distilled spec assumes (SPEC_FULL.md §12.1).
package journal

import (
	"time"

	"github.com/google/uuid"

	"github.com/snapvault/vaultkeeper/internal/domain"
	"github.com/snapvault/vaultkeeper/internal/store"
)

// Manager issues and consumes journal tokens against the store.
type Manager struct {
	store store.Store
}

// New constructs a journal manager backed by s.
func New(s store.Store) *Manager {
	return &Manager{store: s}
}

// Append records a new pending journal entry and returns its token,
// the identity callers later present to Consume.
func (m *Manager) Append(rootID string, kind domain.JournalKind, payload domain.JournalPayload) (string, error) {
	token := uuid.NewString()
	j := &domain.Journal{
		Token:     token,
		RootID:    rootID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := m.store.AppendJournal(j); err != nil {
		return "", err
	}
	return token, nil
}

// Lookup fetches a journal by token.
func (m *Manager) Lookup(token string) (*domain.Journal, error) {
	return m.store.GetJournalByToken(token)
}

// ListUnconsumedCreate returns a root's unconsumed creation journals,
// ordered by append id, for tree construction.
func (m *Manager) ListUnconsumedCreate(rootID string) ([]*domain.Journal, error) {
	return m.store.ListUnconsumedCreateJournals(rootID)
}

// Consume marks a journal as applied. It must be called in the same
// root-locker critical section as the mutation it authorizes
// (spec.md §4.5 step 1).
func (m *Manager) Consume(token string) error {
	return m.store.ConsumeJournal(token)
}

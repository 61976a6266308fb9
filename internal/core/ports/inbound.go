package ports

import (
	"context"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
)

// SessionDirectory creates intake sessions.
type SessionDirectory interface {
	CreateSession(ctx context.Context) (string, error)
}

// IntakeService is the inbound contract for managing one session's working
// set of intake items.
type IntakeService interface {
	AddFile(ctx context.Context, sessionID, filename string, content []byte) (*domain.IntakeItem, error)
	AddURL(ctx context.Context, sessionID, rawURL string) (*domain.IntakeItem, error)
	RemoveItem(ctx context.Context, sessionID, itemID string) error
	ListItems(ctx context.Context, sessionID string) ([]domain.IntakeItem, error)
}

// BatchService is the inbound contract for the first pipeline phase:
// submitting the working set and committing the classified outcome.
type BatchService interface {
	Submit(ctx context.Context, sessionID string) (*domain.ClassifiedState, error)
	ClassifiedState(ctx context.Context, sessionID string) (*domain.ClassifiedState, error)
}

// ValidityService is the inbound contract for the second pipeline phase:
// filtering classified records against a date range.
type ValidityService interface {
	Check(ctx context.Context, sessionID string, rng domain.ValidityRange) (*domain.ValidityResult, error)
	CurrentResult(ctx context.Context, sessionID string) (*domain.ValidityResult, error)
}

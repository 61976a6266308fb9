package usecase

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
	"github.com/kirillkom/document-validity-gateway/internal/core/ports"
)

type IntakeUseCase struct {
	sessions  *SessionManager
	preflight ports.FilePreflight
}

func NewIntakeUseCase(sessions *SessionManager, preflight ports.FilePreflight) *IntakeUseCase {
	return &IntakeUseCase{
		sessions:  sessions,
		preflight: preflight,
	}
}

// AddFile appends a local file to the session's working set. Zero-byte
// payloads are rejected without mutating the registry; .pdf payloads must
// survive a structural preflight so the batch does not carry files the
// extraction service would reject wholesale.
func (uc *IntakeUseCase) AddFile(_ context.Context, sessionID, filename string, content []byte) (*domain.IntakeItem, error) {
	session, err := uc.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("add file %q: %w", filename, domain.ErrEmptyFile)
	}

	item := domain.IntakeItem{
		ID:      uuid.NewString(),
		Name:    filename,
		Kind:    domain.KindLocalFile,
		Size:    int64(len(content)),
		Status:  domain.ItemPending,
		AddedAt: time.Now().UTC(),
		Content: content,
	}

	if uc.preflight != nil && strings.EqualFold(filepath.Ext(filename), ".pdf") {
		pages, err := uc.preflight.Inspect(filename, content)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "pdf preflight", err)
		}
		item.PageCount = pages
	}

	session.appendItem(item)
	return &item, nil
}

// AddURL appends a remote URL. The URL must parse as an absolute URL; the
// extraction service downloads the content itself at submission time.
func (uc *IntakeUseCase) AddURL(_ context.Context, sessionID, rawURL string) (*domain.IntakeItem, error) {
	session, err := uc.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("add url %q: %w", rawURL, domain.ErrInvalidURL)
	}

	item := domain.IntakeItem{
		ID:      uuid.NewString(),
		Name:    NameFromURL(rawURL),
		Kind:    domain.KindRemoteURL,
		URL:     parsed.String(),
		Status:  domain.ItemPending,
		AddedAt: time.Now().UTC(),
	}
	session.appendItem(item)
	return &item, nil
}

// RemoveItem drops the item if present. Removing an unknown id is a no-op.
func (uc *IntakeUseCase) RemoveItem(_ context.Context, sessionID, itemID string) error {
	session, err := uc.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	session.removeItem(itemID)
	return nil
}

func (uc *IntakeUseCase) ListItems(_ context.Context, sessionID string) ([]domain.IntakeItem, error) {
	session, err := uc.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Snapshot(), nil
}

// NameFromURL derives a display name from the URL's final path segment:
// query string and fragment stripped, percent-decoded when the segment
// decodes cleanly, raw segment otherwise. An empty result falls back to a
// timestamped placeholder so the display name is never blank.
func NameFromURL(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.TrimRight(trimmed, "/")

	segment := trimmed
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		segment = trimmed[i+1:]
	}
	if decoded, err := url.PathUnescape(segment); err == nil {
		segment = decoded
	}
	if strings.TrimSpace(segment) == "" || strings.Contains(segment, ":") {
		return fmt.Sprintf("remote-%d", time.Now().UnixNano())
	}
	return segment
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
	"github.com/kirillkom/document-validity-gateway/internal/core/ports"
)

type SubmitBatchUseCase struct {
	sessions  *SessionManager
	extractor ports.BatchExtractor
	audit     ports.AuditLog
	events    ports.EventPublisher
}

func NewSubmitBatchUseCase(
	sessions *SessionManager,
	extractor ports.BatchExtractor,
	audit ports.AuditLog,
	events ports.EventPublisher,
) *SubmitBatchUseCase {
	return &SubmitBatchUseCase{
		sessions:  sessions,
		extractor: extractor,
		audit:     audit,
		events:    events,
	}
}

// Submit sends the session's working set to the extraction service as one
// multipart batch, classifies the response, and commits the classified state
// wholesale. The working set is snapshotted before dispatch; a second
// concurrent submit fails fast; a response arriving after cancellation
// commits nothing.
func (uc *SubmitBatchUseCase) Submit(ctx context.Context, sessionID string) (*domain.ClassifiedState, error) {
	session, err := uc.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	snapshot := session.Snapshot()
	if len(snapshot) == 0 {
		return nil, fmt.Errorf("submit batch: %w", domain.ErrEmptyBatch)
	}

	if err := session.BeginSubmit(); err != nil {
		return nil, err
	}
	defer session.EndSubmit()

	response, err := uc.extractor.ProcessFiles(ctx, snapshot)
	if err != nil {
		var rejected *domain.BatchRejectedError
		if errors.As(err, &rejected) && rejected.Code == domain.RejectionURLDownloadFailed && rejected.Filename != "" {
			// The detail names the offending item; mark it so the caller can
			// drop it and resubmit without discarding the rest of the batch.
			if !session.MarkItemFailed(rejected.Filename, rejected.Message) {
				slog.Warn("rejected_item_not_in_registry", "session_id", sessionID, "item_name", rejected.Filename)
			}
		}
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	state := Classify(response.Results, response.Data)
	submittedIDs := make([]string, len(snapshot))
	for i, item := range snapshot {
		submittedIDs[i] = item.ID
	}
	session.CommitClassified(state, submittedIDs)

	uc.recordAudit(ctx, sessionID, len(snapshot), state)
	uc.publishEvent(ctx, sessionID, state.TotalRecords())
	return state, nil
}

func (uc *SubmitBatchUseCase) ClassifiedState(_ context.Context, sessionID string) (*domain.ClassifiedState, error) {
	session, err := uc.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Classified(), nil
}

func (uc *SubmitBatchUseCase) recordAudit(ctx context.Context, sessionID string, itemCount int, state *domain.ClassifiedState) {
	if uc.audit == nil {
		return
	}
	byType := make(map[domain.DocType]int, len(state.Records))
	for docType, bucket := range state.Records {
		byType[docType] = len(bucket)
	}
	audit := domain.SubmissionAudit{
		SessionID:   sessionID,
		ItemCount:   itemCount,
		RecordCount: state.TotalRecords(),
		ByType:      byType,
		SubmittedAt: time.Now().UTC(),
	}
	if err := uc.audit.RecordSubmission(ctx, audit); err != nil {
		slog.Warn("submission_audit_failed", "session_id", sessionID, "error", err)
	}
}

func (uc *SubmitBatchUseCase) publishEvent(ctx context.Context, sessionID string, recordCount int) {
	if uc.events == nil {
		return
	}
	if err := uc.events.PublishBatchExtracted(ctx, sessionID, recordCount); err != nil {
		slog.Warn("batch_event_publish_failed", "session_id", sessionID, "error", err)
	}
}

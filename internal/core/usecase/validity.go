package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
	"github.com/kirillkom/document-validity-gateway/internal/core/ports"
)

type CheckValidityUseCase struct {
	sessions  *SessionManager
	evaluator ports.ValidityEvaluator
	audit     ports.AuditLog
	events    ports.EventPublisher
}

func NewCheckValidityUseCase(
	sessions *SessionManager,
	evaluator ports.ValidityEvaluator,
	audit ports.AuditLog,
	events ports.EventPublisher,
) *CheckValidityUseCase {
	return &CheckValidityUseCase{
		sessions:  sessions,
		evaluator: evaluator,
		audit:     audit,
		events:    events,
	}
}

// Check submits the full classified record set with the selected date range
// and commits the returned partition. Preconditions are checked locally with
// no network call; a failed check leaves the previous result in place.
func (uc *CheckValidityUseCase) Check(ctx context.Context, sessionID string, rng domain.ValidityRange) (*domain.ValidityResult, error) {
	session, err := uc.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if rng.IsZero() {
		return nil, fmt.Errorf("check validity: %w", domain.ErrMissingRange)
	}
	state := session.Classified()
	if state.IsEmpty() {
		return nil, fmt.Errorf("check validity: %w", domain.ErrNoExtractedData)
	}

	if err := session.BeginCheck(); err != nil {
		return nil, err
	}
	defer session.EndCheck()

	response, err := uc.evaluator.CheckValidity(ctx, rng, state.Records)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := buildValidityResult(rng, state, response)
	session.CommitValidity(result)

	uc.recordAudit(ctx, sessionID, result)
	uc.publishEvent(ctx, sessionID, result.TotalValid)
	return result, nil
}

func (uc *CheckValidityUseCase) CurrentResult(_ context.Context, sessionID string) (*domain.ValidityResult, error) {
	session, err := uc.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Validity(), nil
}

// buildValidityResult resolves the returned identifiers against the
// submitted records. Identifiers outside the submitted bucket are dropped,
// types absent from the response count as zero valid, and a grand total that
// disagrees with the per-type lists is logged but never fatal.
func buildValidityResult(rng domain.ValidityRange, state *domain.ClassifiedState, response *domain.ValidityResponse) *domain.ValidityResult {
	result := &domain.ValidityResult{
		Range:     rng,
		Valid:     make(map[domain.DocType][]domain.ExtractionRecord),
		Invalid:   make(map[domain.DocType][]domain.ExtractionRecord),
		CheckedAt: time.Now().UTC(),
	}

	for _, docType := range domain.KnownDocTypes() {
		submitted := state.Records[docType]
		if len(submitted) == 0 {
			continue
		}

		validIDs := make(map[string]bool)
		for _, id := range response.ValidIDs[docType] {
			record, ok := submitted[id]
			if !ok {
				slog.Warn("valid_record_not_in_submission", "doc_type", docType, "item_id", id)
				continue
			}
			validIDs[id] = true
			result.Valid[docType] = append(result.Valid[docType], record)
		}
		result.TotalValid += len(result.Valid[docType])

		invalidIDs := make([]string, 0, len(submitted))
		for id := range submitted {
			if !validIDs[id] {
				invalidIDs = append(invalidIDs, id)
			}
		}
		sort.Strings(invalidIDs)
		for _, id := range invalidIDs {
			result.Invalid[docType] = append(result.Invalid[docType], submitted[id])
		}
	}

	if response.ReportedTotal != result.TotalValid {
		slog.Warn("validity_total_mismatch",
			"reported_total", response.ReportedTotal,
			"computed_total", result.TotalValid,
		)
	}
	return result
}

func (uc *CheckValidityUseCase) recordAudit(ctx context.Context, sessionID string, result *domain.ValidityResult) {
	if uc.audit == nil {
		return
	}
	audit := domain.ValidityAudit{
		SessionID:  sessionID,
		StartDate:  result.Range.StartDate,
		EndDate:    result.Range.EndDate,
		TotalValid: result.TotalValid,
		CheckedAt:  result.CheckedAt,
	}
	if err := uc.audit.RecordValidityCheck(ctx, audit); err != nil {
		slog.Warn("validity_audit_failed", "session_id", sessionID, "error", err)
	}
}

func (uc *CheckValidityUseCase) publishEvent(ctx context.Context, sessionID string, totalValid int) {
	if uc.events == nil {
		return
	}
	if err := uc.events.PublishValidityChecked(ctx, sessionID, totalValid); err != nil {
		slog.Warn("validity_event_publish_failed", "session_id", sessionID, "error", err)
	}
}

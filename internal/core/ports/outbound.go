package ports

import (
	"context"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
)

// BatchExtractor submits one multipart batch to the extraction service and
// returns the reconciled per-item summaries and structured records.
type BatchExtractor interface {
	ProcessFiles(ctx context.Context, items []domain.IntakeItem) (*domain.ExtractionResponse, error)
}

// ValidityEvaluator filters classified records against a date range.
type ValidityEvaluator interface {
	CheckValidity(ctx context.Context, rng domain.ValidityRange, records map[domain.DocType]map[string]domain.ExtractionRecord) (*domain.ValidityResponse, error)
}

// FilePreflight inspects uploaded bytes before they enter the registry.
type FilePreflight interface {
	Inspect(name string, content []byte) (pages int, err error)
}

// AuditLog records completed pipeline operations for operators. Failures are
// logged and never fail the call that produced the event.
type AuditLog interface {
	RecordSubmission(ctx context.Context, audit domain.SubmissionAudit) error
	RecordValidityCheck(ctx context.Context, audit domain.ValidityAudit) error
}

// EventPublisher broadcasts pipeline lifecycle events to the presentation
// layer.
type EventPublisher interface {
	PublishBatchExtracted(ctx context.Context, sessionID string, recordCount int) error
	PublishValidityChecked(ctx context.Context, sessionID string, totalValid int) error
}

// ReportExporter renders a validity result as a downloadable workbook.
type ReportExporter interface {
	Export(result *domain.ValidityResult) ([]byte, error)
}

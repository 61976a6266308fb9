package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
)

type extractorFake struct {
	response *domain.ExtractionResponse
	err      error
	block    chan struct{}
	seen     []domain.IntakeItem
}

func (f *extractorFake) ProcessFiles(ctx context.Context, items []domain.IntakeItem) (*domain.ExtractionResponse, error) {
	f.seen = items
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type auditFake struct {
	submissions []domain.SubmissionAudit
	checks      []domain.ValidityAudit
	err         error
}

func (f *auditFake) RecordSubmission(_ context.Context, audit domain.SubmissionAudit) error {
	if f.err != nil {
		return f.err
	}
	f.submissions = append(f.submissions, audit)
	return nil
}

func (f *auditFake) RecordValidityCheck(_ context.Context, audit domain.ValidityAudit) error {
	if f.err != nil {
		return f.err
	}
	f.checks = append(f.checks, audit)
	return nil
}

type eventsFake struct {
	extracted []int
	checked   []int
}

func (f *eventsFake) PublishBatchExtracted(_ context.Context, _ string, recordCount int) error {
	f.extracted = append(f.extracted, recordCount)
	return nil
}

func (f *eventsFake) PublishValidityChecked(_ context.Context, _ string, totalValid int) error {
	f.checked = append(f.checked, totalValid)
	return nil
}

func newSubmitFixture(t *testing.T, extractor *extractorFake) (*SubmitBatchUseCase, *SessionManager, string) {
	t.Helper()
	sessions := NewSessionManager()
	sessionID, err := sessions.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return NewSubmitBatchUseCase(sessions, extractor, nil, nil), sessions, sessionID
}

func addPendingFile(t *testing.T, sessions *SessionManager, sessionID, name string) *domain.IntakeItem {
	t.Helper()
	uc := NewIntakeUseCase(sessions, nil)
	item, err := uc.AddFile(context.Background(), sessionID, name, []byte("content"))
	if err != nil {
		t.Fatalf("AddFile() error = %v", err)
	}
	return item
}

func TestSubmitEmptyBatch(t *testing.T) {
	extractor := &extractorFake{}
	uc, _, sessionID := newSubmitFixture(t, extractor)

	_, err := uc.Submit(context.Background(), sessionID)
	if !domain.IsKind(err, domain.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if extractor.seen != nil {
		t.Fatalf("empty batch must not reach the extractor")
	}
}

func TestSubmitCommitsClassifiedState(t *testing.T) {
	extractor := &extractorFake{
		response: &domain.ExtractionResponse{
			Results: map[string]string{"1": "ok", "2": "ok"},
			Data: map[string]map[string]string{
				"1": {domain.TypeTagField: "专利"},
				"2": {domain.TypeTagField: "论文"},
			},
		},
	}
	uc, sessions, sessionID := newSubmitFixture(t, extractor)
	addPendingFile(t, sessions, sessionID, "a.pdf")
	addPendingFile(t, sessions, sessionID, "b.pdf")

	state, err := uc.Submit(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if state.TotalRecords() != 2 {
		t.Fatalf("expected 2 records, got %d", state.TotalRecords())
	}
	if len(extractor.seen) != 2 {
		t.Fatalf("expected 2 items dispatched, got %d", len(extractor.seen))
	}

	session, _ := sessions.Get(sessionID)
	if session.Classified() != state {
		t.Fatalf("classified state not committed")
	}
	for _, item := range session.Snapshot() {
		if item.Status != domain.ItemDone {
			t.Fatalf("expected all items done, got %s", item.Status)
		}
	}
}

func TestSubmitReplacesPriorState(t *testing.T) {
	extractor := &extractorFake{
		response: &domain.ExtractionResponse{
			Results: map[string]string{"1": "ok"},
			Data:    map[string]map[string]string{"1": {domain.TypeTagField: "专利"}},
		},
	}
	uc, sessions, sessionID := newSubmitFixture(t, extractor)
	addPendingFile(t, sessions, sessionID, "a.pdf")

	first, err := uc.Submit(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	extractor.response = &domain.ExtractionResponse{
		Results: map[string]string{"9": "ok"},
		Data:    map[string]map[string]string{"9": {domain.TypeTagField: "标准"}},
	}
	second, err := uc.Submit(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if second == first {
		t.Fatalf("expected wholesale replacement")
	}
	if len(second.Records[domain.DocTypePatent]) != 0 {
		t.Fatalf("prior records leaked into new state")
	}
}

func TestSubmitMarksRejectedURLItem(t *testing.T) {
	extractor := &extractorFake{
		err: &domain.BatchRejectedError{
			Code:     domain.RejectionURLDownloadFailed,
			Message:  "download failed",
			Filename: "paper.pdf",
		},
	}
	uc, sessions, sessionID := newSubmitFixture(t, extractor)
	addPendingFile(t, sessions, sessionID, "paper.pdf")
	addPendingFile(t, sessions, sessionID, "other.pdf")

	_, err := uc.Submit(context.Background(), sessionID)
	var rejected *domain.BatchRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected BatchRejectedError, got %v", err)
	}

	session, _ := sessions.Get(sessionID)
	items := session.Snapshot()
	if items[0].Status != domain.ItemFailed || items[0].Error != "download failed" {
		t.Fatalf("offending item not marked failed: %+v", items[0])
	}
	if items[1].Status != domain.ItemPending {
		t.Fatalf("other items must stay pending: %+v", items[1])
	}
	if session.Classified() != nil {
		t.Fatalf("failed batch must not commit state")
	}
}

func TestSubmitSingleFlight(t *testing.T) {
	extractor := &extractorFake{
		block: make(chan struct{}),
		response: &domain.ExtractionResponse{
			Results: map[string]string{"1": "ok"},
			Data:    map[string]map[string]string{"1": {domain.TypeTagField: "专利"}},
		},
	}
	uc, sessions, sessionID := newSubmitFixture(t, extractor)
	addPendingFile(t, sessions, sessionID, "a.pdf")

	firstDone := make(chan error, 1)
	go func() {
		_, err := uc.Submit(context.Background(), sessionID)
		firstDone <- err
	}()

	// Wait for the first call to take the in-flight slot.
	deadline := time.After(time.Second)
	for {
		session, _ := sessions.Get(sessionID)
		if err := session.BeginSubmit(); err != nil {
			break
		}
		session.EndSubmit()
		select {
		case <-deadline:
			t.Fatalf("first submit never took the in-flight slot")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	_, err := uc.Submit(context.Background(), sessionID)
	if !domain.IsKind(err, domain.ErrOperationInProgress) {
		t.Fatalf("expected ErrOperationInProgress, got %v", err)
	}

	close(extractor.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first submit error = %v", err)
	}
}

func TestSubmitLeavesLateItemsPending(t *testing.T) {
	extractor := &extractorFake{
		block: make(chan struct{}),
		response: &domain.ExtractionResponse{
			Results: map[string]string{"1": "ok"},
			Data:    map[string]map[string]string{"1": {domain.TypeTagField: "专利"}},
		},
	}
	uc, sessions, sessionID := newSubmitFixture(t, extractor)
	addPendingFile(t, sessions, sessionID, "a.pdf")

	done := make(chan error, 1)
	go func() {
		_, err := uc.Submit(context.Background(), sessionID)
		done <- err
	}()

	// Wait for the submit to take the in-flight slot, then grow the registry.
	session, _ := sessions.Get(sessionID)
	deadline := time.After(time.Second)
	for {
		if err := session.BeginSubmit(); err != nil {
			break
		}
		session.EndSubmit()
		select {
		case <-deadline:
			t.Fatalf("submit never took the in-flight slot")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	late := addPendingFile(t, sessions, sessionID, "late.pdf")
	session.MarkItemFailed("late.pdf", "rejected earlier")

	close(extractor.block)
	if err := <-done; err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	for _, item := range session.Snapshot() {
		switch item.ID {
		case late.ID:
			if item.Status != domain.ItemFailed || item.Error != "rejected earlier" {
				t.Fatalf("unsubmitted item must keep its status, got %+v", item)
			}
		default:
			if item.Status != domain.ItemDone {
				t.Fatalf("submitted item not marked done: %+v", item)
			}
		}
	}
}

func TestSubmitCancelledCallCommitsNothing(t *testing.T) {
	extractor := &extractorFake{
		block: make(chan struct{}),
	}
	uc, sessions, sessionID := newSubmitFixture(t, extractor)
	addPendingFile(t, sessions, sessionID, "a.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := uc.Submit(ctx, sessionID)
		done <- err
	}()
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	session, _ := sessions.Get(sessionID)
	if session.Classified() != nil {
		t.Fatalf("cancelled submit must not commit state")
	}
}

func TestSubmitRecordsAuditAndEvents(t *testing.T) {
	extractor := &extractorFake{
		response: &domain.ExtractionResponse{
			Results: map[string]string{"1": "ok"},
			Data:    map[string]map[string]string{"1": {domain.TypeTagField: "专利"}},
		},
	}
	sessions := NewSessionManager()
	sessionID, _ := sessions.CreateSession(context.Background())
	audit := &auditFake{}
	events := &eventsFake{}
	uc := NewSubmitBatchUseCase(sessions, extractor, audit, events)
	addPendingFile(t, sessions, sessionID, "a.pdf")

	if _, err := uc.Submit(context.Background(), sessionID); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(audit.submissions) != 1 || audit.submissions[0].RecordCount != 1 {
		t.Fatalf("unexpected audit: %+v", audit.submissions)
	}
	if len(events.extracted) != 1 || events.extracted[0] != 1 {
		t.Fatalf("unexpected events: %+v", events.extracted)
	}
}

func TestSubmitAuditFailureDoesNotFailCall(t *testing.T) {
	extractor := &extractorFake{
		response: &domain.ExtractionResponse{
			Results: map[string]string{"1": "ok"},
			Data:    map[string]map[string]string{"1": {domain.TypeTagField: "专利"}},
		},
	}
	sessions := NewSessionManager()
	sessionID, _ := sessions.CreateSession(context.Background())
	uc := NewSubmitBatchUseCase(sessions, extractor, &auditFake{err: errors.New("db down")}, nil)
	addPendingFile(t, sessions, sessionID, "a.pdf")

	if _, err := uc.Submit(context.Background(), sessionID); err != nil {
		t.Fatalf("audit failure must not fail the submission, got %v", err)
	}
}

package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
)

type evaluatorFake struct {
	response *domain.ValidityResponse
	err      error
	seen     map[domain.DocType]map[string]domain.ExtractionRecord
	calls    int
}

func (f *evaluatorFake) CheckValidity(_ context.Context, _ domain.ValidityRange, records map[domain.DocType]map[string]domain.ExtractionRecord) (*domain.ValidityResponse, error) {
	f.calls++
	f.seen = records
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func seedClassifiedState(t *testing.T, sessions *SessionManager, sessionID string, state *domain.ClassifiedState) {
	t.Helper()
	session, err := sessions.Get(sessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	session.CommitClassified(state, nil)
}

func patentPaperState() *domain.ClassifiedState {
	return &domain.ClassifiedState{
		Summaries: map[domain.DocType][]string{
			domain.DocTypePatent: {"p1", "p2"},
			domain.DocTypePaper:  {"a1"},
		},
		Records: map[domain.DocType]map[string]domain.ExtractionRecord{
			domain.DocTypePatent: {
				"1": {ItemID: "1", Type: domain.DocTypePatent, Fields: map[string]string{"专利号": "CN1"}},
				"2": {ItemID: "2", Type: domain.DocTypePatent, Fields: map[string]string{"专利号": "CN2"}},
			},
			domain.DocTypePaper: {
				"3": {ItemID: "3", Type: domain.DocTypePaper, Fields: map[string]string{"标题": "t"}},
			},
		},
	}
}

func newValidityFixture(t *testing.T, evaluator *evaluatorFake) (*CheckValidityUseCase, *SessionManager, string) {
	t.Helper()
	sessions := NewSessionManager()
	sessionID, err := sessions.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return NewCheckValidityUseCase(sessions, evaluator, nil, nil), sessions, sessionID
}

func validRange() domain.ValidityRange {
	return domain.ValidityRange{StartDate: "2020-01-01", EndDate: "2024-12-31"}
}

func TestCheckRequiresRange(t *testing.T) {
	evaluator := &evaluatorFake{}
	uc, sessions, sessionID := newValidityFixture(t, evaluator)
	seedClassifiedState(t, sessions, sessionID, patentPaperState())

	_, err := uc.Check(context.Background(), sessionID, domain.ValidityRange{})
	if !domain.IsKind(err, domain.ErrMissingRange) {
		t.Fatalf("expected ErrMissingRange, got %v", err)
	}
	if evaluator.calls != 0 {
		t.Fatalf("precondition failure must not reach the service")
	}
}

func TestCheckRequiresExtractedData(t *testing.T) {
	evaluator := &evaluatorFake{}
	uc, _, sessionID := newValidityFixture(t, evaluator)

	_, err := uc.Check(context.Background(), sessionID, validRange())
	if !domain.IsKind(err, domain.ErrNoExtractedData) {
		t.Fatalf("expected ErrNoExtractedData, got %v", err)
	}
	if evaluator.calls != 0 {
		t.Fatalf("precondition failure must not reach the service")
	}
}

func TestCheckPartitionsValidAndInvalid(t *testing.T) {
	evaluator := &evaluatorFake{
		response: &domain.ValidityResponse{
			ValidIDs: map[domain.DocType][]string{
				domain.DocTypePatent: {"2"},
				domain.DocTypePaper:  {"3"},
			},
			ReportedTotal: 2,
		},
	}
	uc, sessions, sessionID := newValidityFixture(t, evaluator)
	seedClassifiedState(t, sessions, sessionID, patentPaperState())

	result, err := uc.Check(context.Background(), sessionID, validRange())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.TotalValid != 2 {
		t.Fatalf("expected total 2, got %d", result.TotalValid)
	}
	if len(result.Valid[domain.DocTypePatent]) != 1 || result.Valid[domain.DocTypePatent][0].ItemID != "2" {
		t.Fatalf("unexpected valid patents: %+v", result.Valid[domain.DocTypePatent])
	}
	if len(result.Invalid[domain.DocTypePatent]) != 1 || result.Invalid[domain.DocTypePatent][0].ItemID != "1" {
		t.Fatalf("unexpected invalid patents: %+v", result.Invalid[domain.DocTypePatent])
	}
	if len(result.Invalid[domain.DocTypePaper]) != 0 {
		t.Fatalf("unexpected invalid papers: %+v", result.Invalid[domain.DocTypePaper])
	}
	if evaluator.seen == nil {
		t.Fatalf("expected full record mapping dispatched")
	}
}

func TestCheckMissingTypeKeyMeansZeroValid(t *testing.T) {
	evaluator := &evaluatorFake{
		response: &domain.ValidityResponse{
			ValidIDs: map[domain.DocType][]string{
				domain.DocTypePatent: {"1", "2"},
				// No paper key even though papers were submitted.
			},
			ReportedTotal: 2,
		},
	}
	uc, sessions, sessionID := newValidityFixture(t, evaluator)
	seedClassifiedState(t, sessions, sessionID, patentPaperState())

	result, err := uc.Check(context.Background(), sessionID, validRange())
	if err != nil {
		t.Fatalf("missing type key must not fail the call, got %v", err)
	}
	if len(result.Valid[domain.DocTypePaper]) != 0 {
		t.Fatalf("expected zero valid papers, got %+v", result.Valid[domain.DocTypePaper])
	}
	if len(result.Invalid[domain.DocTypePaper]) != 1 {
		t.Fatalf("papers should fall into the invalid partition")
	}
}

func TestCheckDropsIDsOutsideSubmission(t *testing.T) {
	evaluator := &evaluatorFake{
		response: &domain.ValidityResponse{
			ValidIDs: map[domain.DocType][]string{
				domain.DocTypePatent: {"1", "ghost"},
			},
			ReportedTotal: 2,
		},
	}
	uc, sessions, sessionID := newValidityFixture(t, evaluator)
	seedClassifiedState(t, sessions, sessionID, patentPaperState())

	result, err := uc.Check(context.Background(), sessionID, validRange())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	for _, record := range result.Valid[domain.DocTypePatent] {
		if record.ItemID == "ghost" {
			t.Fatalf("record outside submission leaked into result")
		}
	}
	if result.TotalValid != 1 {
		t.Fatalf("expected computed total 1, got %d", result.TotalValid)
	}
}

func TestCheckTotalMismatchIsAdvisory(t *testing.T) {
	evaluator := &evaluatorFake{
		response: &domain.ValidityResponse{
			ValidIDs: map[domain.DocType][]string{
				domain.DocTypePatent: {"1"},
			},
			ReportedTotal: 99,
		},
	}
	uc, sessions, sessionID := newValidityFixture(t, evaluator)
	seedClassifiedState(t, sessions, sessionID, patentPaperState())

	result, err := uc.Check(context.Background(), sessionID, validRange())
	if err != nil {
		t.Fatalf("total mismatch must not fail the call, got %v", err)
	}
	if result.TotalValid != 1 {
		t.Fatalf("per-type lists are the source of truth, got total %d", result.TotalValid)
	}
}

func TestCheckFailureKeepsPriorResult(t *testing.T) {
	evaluator := &evaluatorFake{
		response: &domain.ValidityResponse{
			ValidIDs:      map[domain.DocType][]string{domain.DocTypePatent: {"1"}},
			ReportedTotal: 1,
		},
	}
	uc, sessions, sessionID := newValidityFixture(t, evaluator)
	seedClassifiedState(t, sessions, sessionID, patentPaperState())

	first, err := uc.Check(context.Background(), sessionID, validRange())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	evaluator.err = errors.New("service unreachable")
	if _, err := uc.Check(context.Background(), sessionID, validRange()); err == nil {
		t.Fatalf("expected failure")
	}

	current, err := uc.CurrentResult(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("CurrentResult() error = %v", err)
	}
	if current != first {
		t.Fatalf("transient failure must leave the prior result in place")
	}
}

func TestCheckRecordsAuditAndEvents(t *testing.T) {
	evaluator := &evaluatorFake{
		response: &domain.ValidityResponse{
			ValidIDs:      map[domain.DocType][]string{domain.DocTypePatent: {"1"}},
			ReportedTotal: 1,
		},
	}
	sessions := NewSessionManager()
	sessionID, _ := sessions.CreateSession(context.Background())
	audit := &auditFake{}
	events := &eventsFake{}
	uc := NewCheckValidityUseCase(sessions, evaluator, audit, events)
	seedClassifiedState(t, sessions, sessionID, patentPaperState())

	if _, err := uc.Check(context.Background(), sessionID, validRange()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(audit.checks) != 1 || audit.checks[0].TotalValid != 1 {
		t.Fatalf("unexpected audit: %+v", audit.checks)
	}
	if len(events.checked) != 1 || events.checked[0] != 1 {
		t.Fatalf("unexpected events: %+v", events.checked)
	}
}

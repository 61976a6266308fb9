package domain

import (
	"strings"
	"time"
)

// ValidityRange is the caller-selected closed date interval, both ends
// inclusive. Date strings pass through to the validity service untouched;
// the service owns date parsing.
type ValidityRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (r ValidityRange) IsZero() bool {
	return strings.TrimSpace(r.StartDate) == "" || strings.TrimSpace(r.EndDate) == ""
}

// ValidityResponse is the raw partition the validity service returned:
// per-type item identifiers considered valid, plus the advisory grand total
// the service reported.
type ValidityResponse struct {
	ValidIDs      map[DocType][]string
	ReportedTotal int
}

// ValidityResult is the presentation-ready partition of one validity check.
// TotalValid is computed from the per-type lists; the service-reported total
// is advisory only.
type ValidityResult struct {
	Range      ValidityRange                  `json:"range"`
	Valid      map[DocType][]ExtractionRecord `json:"valid"`
	Invalid    map[DocType][]ExtractionRecord `json:"invalid"`
	TotalValid int                            `json:"total_valid"`
	CheckedAt  time.Time                      `json:"checked_at"`
}

// SubmissionAudit is the operator-facing trace of one completed batch
// submission.
type SubmissionAudit struct {
	SessionID   string
	ItemCount   int
	RecordCount int
	ByType      map[DocType]int
	SubmittedAt time.Time
}

// ValidityAudit is the operator-facing trace of one completed validity check.
type ValidityAudit struct {
	SessionID  string
	StartDate  string
	EndDate    string
	TotalValid int
	CheckedAt  time.Time
}

package domain

import "strings"

// DocType is the closed set of document categories the extraction service
// reports. Tags outside the known set fold into DocTypeUnrecognized at the
// classification boundary.
type DocType string

const (
	DocTypePatent       DocType = "patent"
	DocTypePaper        DocType = "paper"
	DocTypeStandard     DocType = "standard"
	DocTypeCopyright    DocType = "copyright"
	DocTypeUnrecognized DocType = "unrecognized"
)

// TypeTagField is the key the extraction service uses for the document type
// tag inside each structured record.
const TypeTagField = "类型"

// KnownDocTypes returns the enumeration in its fixed display order.
func KnownDocTypes() []DocType {
	return []DocType{
		DocTypePatent,
		DocTypePaper,
		DocTypeStandard,
		DocTypeCopyright,
		DocTypeUnrecognized,
	}
}

// ParseDocType maps a service-reported type tag onto the closed enumeration.
func ParseDocType(tag string) DocType {
	switch strings.TrimSpace(tag) {
	case "专利":
		return DocTypePatent
	case "论文":
		return DocTypePaper
	case "标准":
		return DocTypeStandard
	case "软著", "软件著作权":
		return DocTypeCopyright
	default:
		return DocTypeUnrecognized
	}
}

// Bucket is the wire name for this type in validity-check requests.
func (t DocType) Bucket() string {
	switch t {
	case DocTypePatent:
		return "patents"
	case DocTypePaper:
		return "papers"
	case DocTypeStandard:
		return "standards"
	case DocTypeCopyright:
		return "copyrights"
	default:
		return "unrecognized"
	}
}

// ValidKey is the response key the validity service uses for this type.
func (t DocType) ValidKey() string {
	return "valid_" + t.Bucket()
}

// ExtractionRecord pairs the structured fields the extraction service
// returned for one item with its human-readable summary.
type ExtractionRecord struct {
	ItemID  string            `json:"item_id"`
	Type    DocType           `json:"type"`
	Fields  map[string]string `json:"fields"`
	Summary string            `json:"summary"`
}

// ExtractionResponse is the reconciled payload of one process_files call:
// per-item summaries and per-item structured records, keyed by the same
// item identifiers the request carried.
type ExtractionResponse struct {
	Results map[string]string
	Data    map[string]map[string]string
}

// ClassifiedState is the output of classifying one extraction response.
// It is built wholesale and replaced on the next successful submission,
// never merged.
type ClassifiedState struct {
	Summaries map[DocType][]string                    `json:"summaries"`
	Records   map[DocType]map[string]ExtractionRecord `json:"records"`
}

func (s *ClassifiedState) TotalRecords() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, bucket := range s.Records {
		total += len(bucket)
	}
	return total
}

func (s *ClassifiedState) IsEmpty() bool {
	return s.TotalRecords() == 0
}

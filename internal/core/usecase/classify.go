package usecase

import (
	"log/slog"
	"sort"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
)

// Classify partitions one extraction response into per-type buckets. Every
// identifier lands in exactly one bucket; unknown type tags and records
// missing their paired summary fold into the unrecognized bucket instead of
// failing the batch. Identifiers are walked in sorted order so the same
// response always classifies identically.
func Classify(results map[string]string, data map[string]map[string]string) *domain.ClassifiedState {
	state := &domain.ClassifiedState{
		Summaries: make(map[domain.DocType][]string),
		Records:   make(map[domain.DocType]map[string]domain.ExtractionRecord),
	}

	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fields := data[id]
		docType := domain.ParseDocType(fields[domain.TypeTagField])

		summary, paired := results[id]
		if !paired {
			// Protocol violation: the summary map must mirror the data map.
			// Degrade the single record instead of aborting the batch.
			slog.Warn("unpaired_extraction_record", "item_id", id, "doc_type", docType)
			docType = domain.DocTypeUnrecognized
		}

		record := domain.ExtractionRecord{
			ItemID:  id,
			Type:    docType,
			Fields:  copyFields(fields),
			Summary: summary,
		}

		if state.Records[docType] == nil {
			state.Records[docType] = make(map[string]domain.ExtractionRecord)
		}
		state.Records[docType][id] = record
		state.Summaries[docType] = append(state.Summaries[docType], summary)
	}

	// Summaries present without a structured record are the mirror-image
	// pairing violation; they also degrade to unrecognized.
	for _, id := range orphanSummaryIDs(results, data) {
		slog.Warn("unpaired_extraction_summary", "item_id", id)
		record := domain.ExtractionRecord{
			ItemID:  id,
			Type:    domain.DocTypeUnrecognized,
			Fields:  map[string]string{},
			Summary: results[id],
		}
		if state.Records[domain.DocTypeUnrecognized] == nil {
			state.Records[domain.DocTypeUnrecognized] = make(map[string]domain.ExtractionRecord)
		}
		state.Records[domain.DocTypeUnrecognized][id] = record
		state.Summaries[domain.DocTypeUnrecognized] = append(state.Summaries[domain.DocTypeUnrecognized], results[id])
	}

	return state
}

func orphanSummaryIDs(results map[string]string, data map[string]map[string]string) []string {
	var orphans []string
	for id := range results {
		if _, ok := data[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans
}

func copyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

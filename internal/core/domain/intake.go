package domain

import "time"

type ItemKind string

const (
	KindLocalFile ItemKind = "file"
	KindRemoteURL ItemKind = "url"
)

type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemDone    ItemStatus = "done"
	ItemFailed  ItemStatus = "failed"
)

// IntakeItem is one pending unit of input: an uploaded file held in memory
// until submission, or a remote URL the extraction service downloads itself.
type IntakeItem struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Kind      ItemKind   `json:"kind"`
	Size      int64      `json:"size"`
	URL       string     `json:"url,omitempty"`
	PageCount int        `json:"page_count,omitempty"`
	Status    ItemStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	AddedAt   time.Time  `json:"added_at"`

	// Content is only set for KindLocalFile and never serialized.
	Content []byte `json:"-"`
}

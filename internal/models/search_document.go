package models

import "time"

// SearchDocument is the secondary-index mirror of a crash report revision.
// Non-authoritative: it exists only to serve search queries and can be
// rebuilt from the store at any time.
type SearchDocument struct {
	ID          string    `badgerhold:"key" json:"id"`
	Name        string    `badgerhold:"index" json:"name"`
	Fingerprint string    `json:"fingerprint"`
	State       string    `json:"state"`
	Snippet     string    `json:"snippet"`
	Crash       string    `json:"crash"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// SearchDocumentFor builds the index mirror of a crash report revision.
func SearchDocumentFor(report *CrashReport) *SearchDocument {
	return &SearchDocument{
		ID:          report.ID,
		Name:        report.Name,
		Fingerprint: report.Fingerprint,
		State:       string(report.State),
		Snippet:     report.Snippet(DefaultSnippetLines),
		Crash:       report.Crash,
		IndexedAt:   time.Now(),
	}
}

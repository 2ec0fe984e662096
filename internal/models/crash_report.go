package models

import (
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is the current crash report schema marker. Records written by
// older deployments carry an earlier value until the migration job rewrites them.
const SchemaVersion = "2"

// DefaultSnippetLines is the number of non-blank lines included in a snippet.
const DefaultSnippetLines = 3

// CrashState describes where a crash group sits in its triage lifecycle.
type CrashState string

const (
	StateUnresolved CrashState = "unresolved"
	StatePending    CrashState = "pending"
	StateSubmitted  CrashState = "submitted"
	StateResolved   CrashState = "resolved"
)

// OpenStates are the states included in the trending view (everything that is
// not resolved).
var OpenStates = []CrashState{StateUnresolved, StatePending, StateSubmitted}

// IsValid reports whether s is one of the known crash states.
func (s CrashState) IsValid() bool {
	switch s {
	case StateUnresolved, StatePending, StateSubmitted, StateResolved:
		return true
	}
	return false
}

// CrashReport is one physical revision of a crash group. A logical group is
// identified by its fingerprint; all revisions of a group share the same Name.
// The authoritative occurrence count for a group is the sum of the Count fields
// across its revisions, so concurrent first-submission races never lose an
// increment.
type CrashReport struct {
	ID          string     `badgerhold:"key" json:"id"`
	Name        string     `badgerhold:"index" json:"name"`
	Fingerprint string     `json:"fingerprint"`
	Crash       string     `json:"crash"`
	Count       int        `json:"count"`
	State       CrashState `badgerhold:"index" json:"state"`
	Issue       string     `json:"issue,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	Version     string     `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// KeyName returns the derived storage key for a fingerprint. The mapping is
// stable and 1:1 so the name can always be recomputed from the fingerprint.
func KeyName(fingerprint string) string {
	return fmt.Sprintf("crash_report:%s", fingerprint)
}

// HasIssue reports whether an external tracker issue exists for this group.
func (r *CrashReport) HasIssue() bool {
	return r.Issue != ""
}

// Title returns the first non-blank line of the crash text.
func (r *CrashReport) Title() string {
	for _, line := range strings.Split(r.Crash, "\n") {
		if strings.TrimSpace(line) != "" {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

// Snippet returns the first n non-blank lines of the crash text suffixed with
// an ellipsis marker. Display only, never used for identity.
func (r *CrashReport) Snippet(n int) string {
	if n <= 0 {
		n = DefaultSnippetLines
	}
	var lines []string
	for _, line := range strings.Split(r.Crash, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n..."
}

// CrashReportUpdate is a targeted partial update. Nil fields are left
// untouched so issue/state writes never clobber concurrent count increments.
type CrashReportUpdate struct {
	State *CrashState
	Issue *string
}

// IsEmpty reports whether the update would change nothing.
func (u CrashReportUpdate) IsEmpty() bool {
	return u.State == nil && u.Issue == nil
}

// CrashReportView is the serialized form returned by the API. Count is the
// group total, not the per-revision tally.
type CrashReportView struct {
	Fingerprint string     `json:"fingerprint"`
	Name        string     `json:"name"`
	Count       int        `json:"count"`
	State       CrashState `json:"state"`
	Issue       string     `json:"issue,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	Snippet     string     `json:"snippet"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// View builds the API representation of a report using the given group total.
func (r *CrashReport) View(totalCount int) CrashReportView {
	return CrashReportView{
		Fingerprint: r.Fingerprint,
		Name:        r.Name,
		Count:       totalCount,
		State:       r.State,
		Issue:       r.Issue,
		Labels:      r.Labels,
		Snippet:     r.Snippet(DefaultSnippetLines),
		UpdatedAt:   r.UpdatedAt,
	}
}

// TrendingResult is one page of the trending view.
type TrendingResult struct {
	Trending   []CrashReportView `json:"trending"`
	HasMore    bool              `json:"has_more"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

package store

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/episode"
)

// Filter selects episodes in List. Zero fields match everything; set
// fields combine as a conjunction.
type Filter struct {
	// Project matches case-insensitively on substring. The project
	// prefilters of the vector index and of lexical search match exactly.
	Project string

	// TaskType matches exactly.
	TaskType episode.TaskType

	// Status matches exactly.
	Status episode.Status

	// Tag matches case-insensitively against domain_tags.
	Tag string

	// CreatedAfter / CreatedBefore bound created_at (inclusive).
	CreatedAfter  time.Time
	CreatedBefore time.Time

	// MinUtility / MaxUtility bound utility.score. MaxUtility zero
	// means unbounded.
	MinUtility float64
	MaxUtility float64

	// Limit caps the result count after sorting. Zero means all.
	Limit int
}

// Matches reports whether the episode passes the filter conjunction.
func (f Filter) Matches(e *episode.Episode) bool {
	if f.Project != "" && !strings.Contains(strings.ToLower(e.Project), strings.ToLower(f.Project)) {
		return false
	}
	if f.TaskType != "" && e.Intent.TaskType != f.TaskType {
		return false
	}
	if f.Status != "" && e.Outcome.Status != f.Status {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range e.Intent.DomainTags {
			if strings.EqualFold(tag, f.Tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.CreatedAfter.IsZero() && e.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && e.CreatedAt.After(f.CreatedBefore) {
		return false
	}
	if f.MinUtility > 0 && e.Utility.Score < f.MinUtility {
		return false
	}
	if f.MaxUtility > 0 && e.Utility.Score > f.MaxUtility {
		return false
	}
	return true
}

// skipPartition reports whether a whole YYYY-MM-DD partition falls
// outside the created-at range and can be skipped without reading it.
func (f Filter) skipPartition(name string) bool {
	if f.CreatedAfter.IsZero() && f.CreatedBefore.IsZero() {
		return false
	}
	day, err := time.Parse(partitionLayout, name)
	if err != nil {
		return false // unknown directory name, let record-level checks decide
	}
	if !f.CreatedAfter.IsZero() && day.Add(24*time.Hour-time.Second).Before(f.CreatedAfter) {
		return true
	}
	if !f.CreatedBefore.IsZero() && day.After(f.CreatedBefore) {
		return true
	}
	return false
}

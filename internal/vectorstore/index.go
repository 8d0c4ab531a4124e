// Package vectorstore provides the dense-vector similarity index over
// embedded episodes, plus the lexical fallback used when no vector
// index is available.
//
// The index owns only a derived projection per episode: the embedding,
// denormalized searchable metadata, and a utility mirror, all keyed by
// the episode id. The content store stays authoritative.
package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/episode"
)

// Sentinel errors for vector index operations.
var (
	// ErrIndex wraps vector-index operation failures.
	ErrIndex = errors.New("vector index error")

	// ErrNotFound is returned when no projection exists for an id.
	ErrNotFound = errors.New("projection not found")
)

// Record is the projection of one episode into the index.
type Record struct {
	// ID is the episode id.
	ID string

	// Text is the canonical projection text (see Projection).
	Text string

	// Project and TaskType are denormalized for prefiltering.
	Project  string
	TaskType episode.TaskType

	// CreatedAt is mirrored for result ordering.
	CreatedAt time.Time

	// UtilityScore, RetrievalCount and HelpfulCount mirror the utility
	// annotation at index time.
	UtilityScore   float64
	RetrievalCount int
	HelpfulCount   float64
}

// NewRecord builds the projection record for an episode.
func NewRecord(e *episode.Episode) Record {
	return Record{
		ID:             e.ID,
		Text:           Projection(e),
		Project:        e.Project,
		TaskType:       e.Intent.TaskType,
		CreatedAt:      e.CreatedAt,
		UtilityScore:   e.Utility.Score,
		RetrievalCount: e.Utility.RetrievalCount,
		HelpfulCount:   e.Utility.HelpfulCount,
	}
}

// Result is one nearest-neighbor hit.
type Result struct {
	// ID is the episode id.
	ID string

	// Similarity is in [0,1]: cosine c mapped by (1+c)/2.
	Similarity float64

	// UtilityScore is the utility mirror stored with the projection.
	UtilityScore float64

	// Text is the stored projection text.
	Text string
}

// Filter restricts a search to matching projections. Zero fields match
// everything.
type Filter struct {
	Project  string
	TaskType episode.TaskType
}

// Index is the capability set a retrieval backend provides.
type Index interface {
	// Upsert writes or overwrites the projection for rec.ID, embedding
	// rec.Text.
	Upsert(ctx context.Context, rec Record) error

	// Search returns up to k nearest neighbors for the query text.
	Search(ctx context.Context, query string, k int, filter Filter) ([]Result, error)

	// Delete removes the projection for id. Deleting a missing id is not
	// an error.
	Delete(ctx context.Context, id string) error

	// UpdateUtility rewrites the utility mirror for id without
	// re-embedding.
	UpdateUtility(ctx context.Context, id string, score float64) error

	// IDs returns all indexed episode ids.
	IDs(ctx context.Context) ([]string, error)

	// Count returns the number of indexed projections.
	Count(ctx context.Context) (int, error)

	// Close flushes and releases the index.
	Close() error
}

// CosineSimilarity maps a cosine value in [-1,1] to the engine's
// similarity scale [0,1].
func CosineSimilarity(c float64) float64 {
	s := (1 + c) / 2
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

package engine

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/episode"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/utility"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// The error taxonomy the facade signals upward. Adapters translate
// these into their own surface (exit codes, protocol error bodies);
// nothing in the core uses panics for control flow.
var (
	// ErrNotInitialized means the data directory is missing or invalid.
	ErrNotInitialized = errors.New("data directory not initialized")

	// ErrNotFound means no episode exists for the id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput means a malformed episode or out-of-range
	// parameter.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig means the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrStoreIO means a content-store read or write failed after its
	// internal retry.
	ErrStoreIO = errors.New("content store I/O error")

	// ErrIndex means a vector-index operation failed.
	ErrIndex = errors.New("vector index error")

	// ErrEmbeddingUnavailable means the embedding provider failed;
	// retrieval returns it without a lexical retry, capture has already
	// persisted the episode marked needs_indexing.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrConflict means a concurrent writer raced on the same id; the
	// caller retries.
	ErrConflict = errors.New("concurrent write conflict")

	// ErrPruneIncomplete means a prune run stopped part way; the next
	// run resumes.
	ErrPruneIncomplete = errors.New("prune incomplete")
)

// Exit codes for thin command-line adapters.
const (
	ExitOK                   = 0
	ExitError                = 1
	ExitInvalidConfig        = 2
	ExitNotInitialized       = 3
	ExitStoreIO              = 4
	ExitIndexError           = 5
	ExitEmbeddingUnavailable = 6
)

// translate maps internal package errors onto the facade taxonomy. The
// original error stays in the chain for logs.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotInitialized),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrStoreIO),
		errors.Is(err, ErrIndex),
		errors.Is(err, ErrEmbeddingUnavailable),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrPruneIncomplete):
		return err // already taxonomy
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrAmbiguousID):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case errors.Is(err, store.ErrIO):
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	case errors.Is(err, episode.ErrMissingID),
		errors.Is(err, episode.ErrEmptyPrompt),
		errors.Is(err, episode.ErrInvalidTaskType),
		errors.Is(err, episode.ErrInvalidStatus),
		errors.Is(err, episode.ErrInvalidUtility),
		errors.Is(err, episode.ErrInvalidTimestamp):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case errors.Is(err, embeddings.ErrDimensionMismatch):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case errors.Is(err, embeddings.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	case errors.Is(err, embeddings.ErrInvalidConfig), errors.Is(err, config.ErrInvalidConfig):
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	case errors.Is(err, vectorstore.ErrIndex):
		return fmt.Errorf("%w: %v", ErrIndex, err)
	case errors.Is(err, utility.ErrPruneIncomplete):
		return fmt.Errorf("%w: %v", ErrPruneIncomplete, err)
	case errors.Is(err, utility.ErrUnknownKind):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		return err
	}
}

// ExitCode maps a facade error onto the adapter exit-code contract.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidConfig):
		return ExitInvalidConfig
	case errors.Is(err, ErrNotInitialized):
		return ExitNotInitialized
	case errors.Is(err, ErrStoreIO):
		return ExitStoreIO
	case errors.Is(err, ErrIndex):
		return ExitIndexError
	case errors.Is(err, ErrEmbeddingUnavailable):
		return ExitEmbeddingUnavailable
	default:
		return ExitError
	}
}

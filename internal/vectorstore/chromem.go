package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/episode"
)

var chromemTracer = otel.Tracer("recalld.vectorstore.chromem")

const (
	// collectionName is the single episode collection.
	collectionName = "episodes"

	// idsFileName is the sidecar listing indexed ids. chromem does not
	// expose id enumeration, and the reconcilers (index_all, orphan
	// sweep) need it.
	idsFileName = "ids.json"
)

// ChromemConfig holds configuration for the embedded chromem index.
type ChromemConfig struct {
	// Path is the directory for persistent index files, normally
	// <data_dir>/vectors.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemIndex implements Index on chromem-go, an embeddable pure-Go
// vector database persisted under the data directory. Writes are
// serialized through a single writer lock; reads run concurrently.
type ChromemIndex struct {
	db       *chromem.DB
	col      *chromem.Collection
	embedder embeddings.Provider
	logger   *zap.Logger
	path     string

	mu  sync.RWMutex // single-writer / multi-reader over col + ids
	ids map[string]struct{}
}

// NewChromemIndex opens (creating if needed) the persistent index.
func NewChromemIndex(cfg ChromemConfig, embedder embeddings.Provider, logger *zap.Logger) (*ChromemIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrIndex)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrIndex)
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrIndex, cfg.Path, err)
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem DB: %v", ErrIndex, err)
	}

	// Embeddings are computed by our provider; chromem never calls this
	// for pre-embedded documents, but the collection requires a func.
	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	col, err := db.GetOrCreateCollection(collectionName, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: opening collection: %v", ErrIndex, err)
	}

	idx := &ChromemIndex{
		db:       db,
		col:      col,
		embedder: embedder,
		logger:   logger,
		path:     cfg.Path,
		ids:      make(map[string]struct{}),
	}
	if err := idx.loadIDs(); err != nil {
		return nil, err
	}

	logger.Debug("chromem index opened",
		zap.String("path", cfg.Path),
		zap.Int("projections", len(idx.ids)),
	)
	return idx, nil
}

func (x *ChromemIndex) idsPath() string {
	return filepath.Join(x.path, idsFileName)
}

func (x *ChromemIndex) loadIDs() error {
	raw, err := os.ReadFile(x.idsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: reading id sidecar: %v", ErrIndex, err)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		x.logger.Warn("id sidecar unreadable, starting empty", zap.Error(err))
		return nil
	}
	for _, id := range list {
		x.ids[id] = struct{}{}
	}
	return nil
}

// saveIDsLocked persists the sidecar. Caller holds the write lock.
func (x *ChromemIndex) saveIDsLocked() error {
	list := make([]string, 0, len(x.ids))
	for id := range x.ids {
		list = append(list, id)
	}
	sort.Strings(list)
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("%w: encoding id sidecar: %v", ErrIndex, err)
	}
	if err := os.WriteFile(x.idsPath(), raw, 0o644); err != nil {
		return fmt.Errorf("%w: writing id sidecar: %v", ErrIndex, err)
	}
	return nil
}

// Upsert writes or overwrites the projection for rec.ID.
func (x *ChromemIndex) Upsert(ctx context.Context, rec Record) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("episode_id", rec.ID))

	if rec.ID == "" || rec.Text == "" {
		return fmt.Errorf("%w: record needs id and text", ErrIndex)
	}

	vecs, err := x.embedder.EmbedDocuments(ctx, []string{rec.Text})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// chromem has no in-place update: drop any prior projection first.
	if _, exists := x.ids[rec.ID]; exists {
		if err := x.col.Delete(ctx, nil, nil, rec.ID); err != nil {
			span.RecordError(err)
			return fmt.Errorf("%w: replacing %s: %v", ErrIndex, episode.ShortID(rec.ID), err)
		}
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: vecs[0],
		Metadata:  recordMetadata(rec),
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: adding %s: %v", ErrIndex, episode.ShortID(rec.ID), err)
	}

	x.ids[rec.ID] = struct{}{}
	if err := x.saveIDsLocked(); err != nil {
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func recordMetadata(rec Record) map[string]string {
	return map[string]string{
		"project":         rec.Project,
		"task_type":       string(rec.TaskType),
		"created_at":      strconv.FormatInt(rec.CreatedAt.Unix(), 10),
		"utility_score":   strconv.FormatFloat(rec.UtilityScore, 'f', -1, 64),
		"retrieval_count": strconv.Itoa(rec.RetrievalCount),
		"helpful_count":   strconv.FormatFloat(rec.HelpfulCount, 'f', -1, 64),
	}
}

// Search embeds the query verbatim and returns up to k neighbors.
func (x *ChromemIndex) Search(ctx context.Context, query string, k int, filter Filter) ([]Result, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrIndex)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrIndex)
	}

	vec, err := x.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	count := x.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	where := map[string]string{}
	if filter.Project != "" {
		where["project"] = filter.Project
	}
	if filter.TaskType != "" {
		where["task_type"] = string(filter.TaskType)
	}

	// chromem rejects nResults larger than the matching document count,
	// which is unknowable up front under a where filter. Back off until
	// the query fits.
	var hits []chromem.Result
	for ; k >= 1; k-- {
		hits, err = x.col.QueryEmbedding(ctx, vec, k, where, nil)
		if err == nil {
			break
		}
		if !strings.Contains(err.Error(), "nResults") {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%w: querying: %v", ErrIndex, err)
		}
	}
	if err != nil {
		return nil, nil // filter matched nothing
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		score, _ := strconv.ParseFloat(hit.Metadata["utility_score"], 64)
		results[i] = Result{
			ID:           hit.ID,
			Similarity:   CosineSimilarity(float64(hit.Similarity)),
			UtilityScore: score,
			Text:         hit.Content,
		}
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	span.SetStatus(codes.Ok, "")
	return results, nil
}

// Delete removes the projection for id.
func (x *ChromemIndex) Delete(ctx context.Context, id string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Delete")
	defer span.End()

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.ids[id]; !exists {
		return nil
	}
	if err := x.col.Delete(ctx, nil, nil, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: deleting %s: %v", ErrIndex, episode.ShortID(id), err)
	}
	delete(x.ids, id)
	return x.saveIDsLocked()
}

// UpdateUtility rewrites the utility mirror for id, reusing the stored
// embedding.
func (x *ChromemIndex) UpdateUtility(ctx context.Context, id string, score float64) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.UpdateUtility")
	defer span.End()

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.ids[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, episode.ShortID(id))
	}
	doc, err := x.col.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: loading %s: %v", ErrIndex, episode.ShortID(id), err)
	}

	meta := make(map[string]string, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta["utility_score"] = strconv.FormatFloat(score, 'f', -1, 64)

	if err := x.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", ErrIndex, episode.ShortID(id), err)
	}
	doc.Metadata = meta
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: re-adding %s: %v", ErrIndex, episode.ShortID(id), err)
	}
	return nil
}

// IDs returns all indexed ids.
func (x *ChromemIndex) IDs(ctx context.Context) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.ids))
	for id := range x.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Count returns the number of indexed projections.
func (x *ChromemIndex) Count(ctx context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.col.Count(), nil
}

// Close releases the index. chromem persists on every write, so there is
// nothing to flush.
func (x *ChromemIndex) Close() error {
	return nil
}

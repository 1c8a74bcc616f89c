package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/ternarybob/forge/internal/store"
	"github.com/ternarybob/forge/pkg/embedder"
)

// Scoring weights from §4.C's recall formula.
const (
	weightVector = 0.6
	weightKeyword = 0.2
	weightEntity  = 0.2
)

// contradictionDownweight is applied to earlier facts whose entities
// overlap a newly-stored correction fact (§4.C).
const contradictionDownweight = 0.5

// Recall is component C: conversation facts plus a ranked retrieval
// layer over them, backed by the embedded store for rows and a
// chromem-go collection per project for fact embeddings (separate
// collection from the Code Intelligence Index's chunk embeddings).
type Recall struct {
	store    *store.Store
	embedder embedder.Embedder
	vectors  *chromem.DB

	collections map[string]*chromem.Collection
}

// New creates a Recall component. embedder may be nil, in which case
// recall falls back to keyword+entity scoring only, matching §4.B's
// "vector table empty or embedder unavailable" fallback philosophy
// applied to the analogous case in Memory Recall.
func New(st *store.Store, emb embedder.Embedder) *Recall {
	return &Recall{
		store:       st,
		embedder:    emb,
		vectors:     chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (r *Recall) collectionFor(scopeKey string) (*chromem.Collection, error) {
	if c, ok := r.collections[scopeKey]; ok {
		return c, nil
	}
	c, err := r.vectors.GetOrCreateCollection("facts:"+scopeKey, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create fact collection: %w", err)
	}
	r.collections[scopeKey] = c
	return c, nil
}

// StoreFactInput is the caller-supplied shape for Store.
type StoreFactInput struct {
	ProjectID string
	SessionID string
	Key       string
	Content   string
	FactType  store.FactType
	Category  string
	Scope     store.FactScope
}

// Store inserts a fact, running entity extraction over its content and
// computing an embedding, and applies §4.C's confidence rules:
// repeated storage of the same key trends confidence toward the mean
// of observations, and a correction fact downweights earlier
// entity-overlapping facts by 0.5x.
func (r *Recall) Store(ctx context.Context, in StoreFactInput) (*store.MemoryFact, error) {
	now := time.Now()
	entities := CanonicalizeAll(in.Content)

	confidence := 0.8
	if in.Key != "" {
		if existing, err := r.store.FactByKey(ctx, in.ProjectID, in.SessionID, in.Key); err == nil {
			confidence = (existing.Confidence + confidence) / 2
		}
	}

	fact := store.MemoryFact{
		ID:           uuid.NewString(),
		ProjectID:    in.ProjectID,
		SessionID:    in.SessionID,
		Key:          in.Key,
		Content:      in.Content,
		FactType:     in.FactType,
		Category:     in.Category,
		Confidence:   confidence,
		CreatedAt:    now,
		LastAccessed: now,
		Scope:        in.Scope,
	}

	storeEntities := make([]store.Entity, len(entities))
	rawNames := make(map[string]string, len(entities))
	for i, e := range entities {
		storeEntities[i] = store.Entity{CanonicalName: e.CanonicalName, EntityType: string(e.Type)}
		rawNames[e.CanonicalName+"|"+string(e.Type)] = e.RawName
	}

	if err := r.store.InsertFact(ctx, fact, storeEntities, rawNames); err != nil {
		return nil, fmt.Errorf("insert fact: %w", err)
	}

	if err := r.embedAndIndex(ctx, fact); err != nil {
		return nil, err
	}

	if in.FactType == store.FactCorrection {
		if err := r.downweightContradicted(ctx, fact, storeEntities); err != nil {
			return nil, err
		}
	}

	return &fact, nil
}

func (r *Recall) embedAndIndex(ctx context.Context, fact store.MemoryFact) error {
	if r.embedder == nil {
		return nil
	}
	vec, err := r.embedder.EmbedForStorage(ctx, fact.Content)
	if err != nil {
		return nil // embedding is best-effort; recall degrades to keyword+entity
	}

	col, err := r.collectionFor(scopeKey(fact))
	if err != nil {
		return err
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:        fact.ID,
		Content:   fact.Content,
		Embedding: vec,
	})
}

func (r *Recall) downweightContradicted(ctx context.Context, correction store.MemoryFact, correctionEntities []store.Entity) error {
	candidates, err := r.store.CandidateFacts(ctx, correction.ProjectID, correction.SessionID, correction.Scope == store.ScopeGlobal)
	if err != nil {
		return err
	}
	correctionKeys := entitySet(correctionEntities)

	for _, cand := range candidates {
		if cand.ID == correction.ID {
			continue
		}
		ents, err := r.store.EntitiesForFact(ctx, cand.ID)
		if err != nil {
			return err
		}
		if !overlaps(correctionKeys, entityKeys(ents)) {
			continue
		}
		if err := r.store.UpdateFactConfidence(ctx, cand.ID, cand.Confidence*contradictionDownweight); err != nil {
			return err
		}
	}
	return nil
}

// Fact is a recall result: the stored row plus its computed score.
type Fact struct {
	store.MemoryFact
	Score float64
}

// ScopeFilters selects which scopes recall searches over, matching
// §4.G's "top 5-10 facts scoped to the project if set, else global".
type ScopeFilters struct {
	ProjectID     string
	SessionID     string
	IncludeGlobal bool
}

// Recall scores every scope-filtered candidate fact by
// w_vec*cos(q,fact) + w_kw*keyword_overlap + w_ent*entity_overlap,
// returning the top k ordered by score then by more-recent
// last_accessed (§4.C).
func (r *Recall) Recall(ctx context.Context, query string, scope ScopeFilters, k int) ([]Fact, error) {
	candidates, err := r.store.CandidateFacts(ctx, scope.ProjectID, scope.SessionID, scope.IncludeGlobal)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	queryEntities := CanonicalizeAll(query)
	queryEntitySet := make(map[string]bool, len(queryEntities))
	for _, e := range queryEntities {
		queryEntitySet[e.CanonicalName+"|"+string(e.Type)] = true
	}

	var queryVec []float32
	if r.embedder != nil {
		if v, err := r.embedder.EmbedForQuery(ctx, query); err == nil {
			queryVec = v
		}
	}

	scored := make([]Fact, 0, len(candidates))
	for _, cand := range candidates {
		kw := keywordOverlap(query, cand.Content)
		ent := 0.0
		if ents, err := r.store.EntitiesForFact(ctx, cand.ID); err == nil {
			ent = entityOverlapScore(queryEntitySet, ents)
		}
		vec := 0.0
		if queryVec != nil {
			if factVec, ok := r.factEmbedding(ctx, cand); ok {
				vec = cosine(queryVec, factVec)
			}
		}

		score := weightVector*vec + weightKeyword*kw + weightEntity*ent
		scored = append(scored, Fact{MemoryFact: cand, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].LastAccessed.After(scored[j].LastAccessed)
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	for _, f := range scored {
		_ = r.store.TouchFact(ctx, f.ID, time.Now())
	}
	return scored, nil
}

func (r *Recall) factEmbedding(ctx context.Context, fact store.MemoryFact) ([]float32, bool) {
	col, err := r.collectionFor(scopeKey(fact))
	if err != nil {
		return nil, false
	}
	doc, err := col.GetByID(ctx, fact.ID)
	if err != nil {
		return nil, false
	}
	return doc.Embedding, true
}

func scopeKey(f store.MemoryFact) string {
	if f.ProjectID != "" {
		return "project:" + f.ProjectID
	}
	return "global"
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"of": true, "to": true, "in": true, "on": true, "and": true, "or": true,
	"it": true, "this": true, "that": true, "for": true, "with": true, "be": true,
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if w == "" || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

// keywordOverlap is the jaccard of lowercased tokens after removing a
// small stopword set (§4.C).
func keywordOverlap(a, b string) float64 {
	return jaccard(tokenize(a), tokenize(b))
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// entity_overlap = jaccard over (canonical_name, type) pairs (§4.C).
func entityOverlapScore(query map[string]bool, factEntities []store.Entity) float64 {
	fe := entityKeys(factEntities)
	return jaccard(query, fe)
}

func entityKeys(ents []store.Entity) map[string]bool {
	out := make(map[string]bool, len(ents))
	for _, e := range ents {
		out[e.CanonicalName+"|"+e.EntityType] = true
	}
	return out
}

func entitySet(ents []store.Entity) map[string]bool {
	return entityKeys(ents)
}

func overlaps(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

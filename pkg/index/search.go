package index

import (
	"context"
	"fmt"
	"sort"
)

// Hit is one result of a hybrid search, matching §4.B's Hit shape.
type Hit struct {
	FilePath  string
	StartLine int
	Content   string
	Score     float64
	Origin    string // "fts", "vec", or "both"
}

// rrfK0 is the reciprocal-rank-fusion constant from §4.B / GLOSSARY.
const rrfK0 = 60

// Search answers a hybrid FTS + vector query (§4.B): it runs the FTS5
// half over code_chunks, the KNN half over the project's chromem-go
// collection (if an embedder is configured), and merges both rankings
// by (file_path, start_line) via reciprocal rank fusion. If the vector
// table is empty or the embedder is unavailable, it falls back to
// FTS-only without failing.
func (ci *CodeIntel) Search(ctx context.Context, projectID, query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	pool := k * 3
	if pool < 20 {
		pool = 20
	}

	ftsChunks, err := ci.store.SearchChunksFTS(ctx, projectID, query, pool)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}

	type ranked struct {
		key       string
		filePath  string
		startLine int
		content   string
		rrf       float64
		inFTS     bool
		inVec     bool
	}
	byKey := make(map[string]*ranked)
	order := func(filePath string, startLine int) string {
		return fmt.Sprintf("%s:%d", filePath, startLine)
	}

	for rank, c := range ftsChunks {
		key := order(c.FilePath, c.StartLine)
		r, ok := byKey[key]
		if !ok {
			r = &ranked{key: key, filePath: c.FilePath, startLine: c.StartLine, content: c.ChunkContent}
			byKey[key] = r
		}
		r.inFTS = true
		r.rrf += 1.0 / float64(rrfK0+rank+1)
	}

	if ci.embedder != nil {
		if col, err := ci.collectionFor(projectID); err == nil && col.Count() > 0 {
			qvec, err := ci.embedder.EmbedForQuery(ctx, query)
			if err == nil {
				n := pool
				if n > col.Count() {
					n = col.Count()
				}
				if n > 0 {
					docs, err := col.QueryEmbedding(ctx, qvec, n, nil, nil)
					if err == nil {
						for rank, d := range docs {
							filePath := d.Metadata["file_path"]
							startLine := atoiSafe(d.Metadata["start_line"])
							key := order(filePath, startLine)
							r, ok := byKey[key]
							if !ok {
								r = &ranked{key: key, filePath: filePath, startLine: startLine, content: d.Content}
								byKey[key] = r
							}
							r.inVec = true
							r.rrf += 1.0 / float64(rrfK0+rank+1)
						}
					}
				}
			}
		}
	}

	out := make([]Hit, 0, len(byKey))
	for _, r := range byKey {
		origin := "fts"
		switch {
		case r.inFTS && r.inVec:
			origin = "both"
		case r.inVec && !r.inFTS:
			origin = "vec"
		}
		out = append(out, Hit{
			FilePath:  r.filePath,
			StartLine: r.startLine,
			Content:   r.content,
			Score:     r.rrf,
			Origin:    origin,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].StartLine < out[j].StartLine
	})

	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func atoiSafe(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}

// EnsureProjectIndexed is a convenience no-op hook point kept for
// callers that want to confirm a collection exists before querying;
// chromem-go creates collections lazily so this simply primes the
// cache entry used by Search and embedChunks.
func (ci *CodeIntel) EnsureProjectIndexed(projectID string) error {
	_, err := ci.collectionFor(projectID)
	return err
}

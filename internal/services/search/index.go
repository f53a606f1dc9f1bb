// Package search maintains an in-memory index over the process corpus for
// operator lookups by process number, authority or nickname.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/conectasei/conectasei/internal/interfaces"
	"github.com/conectasei/conectasei/internal/models"
)

// Hit is one search result.
type Hit struct {
	ProcessID     string
	ProcessNumber string
	TenantID      string
	Score         float64
}

type docEntry struct {
	processNumber string
	tenantID      string
	tokens        map[string]int
	length        int
}

// Index is a token-frequency index rebuilt from storage at startup and
// updated on every process upsert.
type Index struct {
	mu       sync.RWMutex
	docs     map[string]*docEntry // process ID -> entry
	postings map[string]map[string]struct{} // token -> process IDs
	logger   arbor.ILogger
}

// NewIndex creates an empty index.
func NewIndex(logger arbor.ILogger) *Index {
	return &Index{
		docs:     map[string]*docEntry{},
		postings: map[string]map[string]struct{}{},
		logger:   logger,
	}
}

// Rebuild loads every process of every tenant into a fresh index.
func (ix *Index) Rebuild(ctx context.Context, tenants interfaces.TenantStorage, processes interfaces.ProcessStorage) error {
	all, err := tenants.List(ctx, false)
	if err != nil {
		return err
	}

	count := 0
	ix.mu.Lock()
	ix.docs = map[string]*docEntry{}
	ix.postings = map[string]map[string]struct{}{}
	ix.mu.Unlock()

	for _, tenant := range all {
		procs, err := processes.ListByTenant(ctx, tenant.ID)
		if err != nil {
			return err
		}
		for _, p := range procs {
			ix.Upsert(p)
			count++
		}
	}

	ix.logger.Info().Int("processes", count).Msg("Search index rebuilt")
	return nil
}

// Upsert indexes (or re-indexes) one process.
func (ix *Index) Upsert(p *models.Process) {
	tokens := tokenize(p.ProcessNumber + " " + p.Authority + " " + p.Nickname + " " + p.Unit)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(p.ID)

	entry := &docEntry{
		processNumber: p.ProcessNumber,
		tenantID:      p.TenantID,
		tokens:        map[string]int{},
	}
	for _, t := range tokens {
		entry.tokens[t]++
		entry.length++
		ids, ok := ix.postings[t]
		if !ok {
			ids = map[string]struct{}{}
			ix.postings[t] = ids
		}
		ids[p.ID] = struct{}{}
	}
	ix.docs[p.ID] = entry
}

// Remove drops one process from the index.
func (ix *Index) Remove(processID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(processID)
}

func (ix *Index) removeLocked(processID string) {
	entry, ok := ix.docs[processID]
	if !ok {
		return
	}
	for t := range entry.tokens {
		if ids, ok := ix.postings[t]; ok {
			delete(ids, processID)
			if len(ids) == 0 {
				delete(ix.postings, t)
			}
		}
	}
	delete(ix.docs, processID)
}

// Search scores documents by term frequency weighted against term rarity.
// tenantID empty searches across tenants.
func (ix *Index) Search(query, tenantID string, limit int) []Hit {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	total := len(ix.docs)
	scores := map[string]float64{}
	for _, term := range terms {
		ids, ok := ix.postings[term]
		if !ok {
			continue
		}
		// Rarer terms weigh more.
		idf := 1.0 + float64(total)/float64(len(ids)+1)
		for id := range ids {
			entry := ix.docs[id]
			if tenantID != "" && entry.tenantID != tenantID {
				continue
			}
			tf := float64(entry.tokens[term]) / float64(entry.length)
			scores[id] += tf * idf
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		entry := ix.docs[id]
		hits = append(hits, Hit{
			ProcessID:     id,
			ProcessNumber: entry.processNumber,
			TenantID:      entry.tenantID,
			Score:         score,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ProcessNumber < hits[j].ProcessNumber
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// tokenize lowercases and splits on anything that is not a letter or digit,
// keeping full process numbers intact as an extra token.
func tokenize(s string) []string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r >= 0x00C0)
	})

	var out []string
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	// Whole process numbers stay searchable verbatim.
	for _, f := range strings.Fields(s) {
		if models.ValidProcessNumber(f) {
			out = append(out, f)
		}
	}
	return out
}

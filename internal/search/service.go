package search

import (
	"context"
	"log"
)

// Service tries Meilisearch first, then Postgres full-text search, then the
// in-process index.
type Service struct {
	meili *Meili
	pgfts *PgFTS
	local *Local
}

// NewService creates a search service. meili and pgfts may be nil.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts, local: NewLocal()}
}

func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back: %v", err)
	}

	var fallback Searcher = s.local
	if s.pgfts != nil {
		fallback = s.pgfts
	}
	results, total, err := fallback.Search(q)
	if err != nil {
		log.Printf("search: fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDocument updates the in-process index and pushes to Meilisearch in
// the background.
func (s *Service) IndexDocument(doc DocumentRecord) {
	s.local.Index(doc)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexDocuments(doc); err != nil {
			log.Printf("search: index document %s: %v", doc.Key, err)
		}
	}()
}

func (s *Service) DeleteDocument(key string) {
	s.local.Delete(key)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteDocument(key); err != nil {
			log.Printf("search: delete document %s: %v", key, err)
		}
	}()
}

// ReindexAllFromPG pushes every stored document into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context, enrich func(*DocumentRecord)) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if enrich != nil {
		for i := range records {
			enrich(&records[i])
		}
	}
	if err := s.meili.IndexDocuments(records...); err != nil {
		log.Printf("search: reindex documents: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/relabs-tech/ghcrawler/core/document"
	"github.com/relabs-tech/ghcrawler/core/urn"
)

type memoryEntry struct {
	doc         *document.Document
	processedAt time.Time
}

// Memory is an in-memory store for examples and tests. It supports
// concurrent reads and last-writer-wins upserts like the postgres store.
type Memory struct {
	mutex   sync.RWMutex
	byURN   map[urn.URN]memoryEntry
	byURL   map[string]urn.URN
	FailAll bool // when set, all operations report ErrUnavailable
}

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		byURN: map[urn.URN]memoryEntry{},
		byURL: map[string]urn.URN{},
	}
}

// Get returns the stored document for the given type and source URL
func (s *Memory) Get(ctx context.Context, typ, url string) (*document.Document, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.FailAll {
		return nil, ErrUnavailable
	}
	u, ok := s.byURL[url]
	if !ok {
		return nil, nil
	}
	entry := s.byURN[u]
	if entry.doc == nil || entry.doc.Meta.Type != typ {
		return nil, nil
	}
	return entry.doc, nil
}

// Etag returns the stored etag for the given type and source URL
func (s *Memory) Etag(ctx context.Context, typ, url string) (string, error) {
	doc, err := s.Get(ctx, typ, url)
	if err != nil || doc == nil {
		return "", err
	}
	return doc.Meta.Etag, nil
}

// Upsert writes the document keyed by its self URN
func (s *Memory) Upsert(ctx context.Context, doc *document.Document) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.FailAll {
		return ErrUnavailable
	}
	self := doc.Self()
	if self == "" {
		return fmt.Errorf("upsert %s %s: document has no self link", doc.Meta.Type, doc.Meta.URL)
	}
	s.byURN[self] = memoryEntry{doc: doc, processedAt: time.Now().UTC()}
	s.byURL[doc.Meta.URL] = self
	return nil
}

// List returns summaries of all stored documents of one type
func (s *Memory) List(ctx context.Context, typ string) ([]Summary, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.FailAll {
		return nil, ErrUnavailable
	}
	var summaries []Summary
	for u, entry := range s.byURN {
		if entry.doc.Meta.Type != typ {
			continue
		}
		summaries = append(summaries, Summary{
			URN:         u,
			URL:         entry.doc.Meta.URL,
			Version:     entry.doc.Meta.Version,
			Etag:        entry.doc.Meta.Etag,
			ProcessedAt: entry.processedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].URN < summaries[j].URN })
	return summaries, nil
}

// Delete removes the document with the given URN
func (s *Memory) Delete(ctx context.Context, typ string, u urn.URN) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.FailAll {
		return ErrUnavailable
	}
	entry, ok := s.byURN[u]
	if !ok || entry.doc.Meta.Type != typ {
		return nil
	}
	delete(s.byURL, entry.doc.Meta.URL)
	delete(s.byURN, u)
	return nil
}

// Count returns the number of stored documents of one type
func (s *Memory) Count(ctx context.Context, typ string) (int, error) {
	summaries, err := s.List(ctx, typ)
	if err != nil {
		return 0, err
	}
	return len(summaries), nil
}

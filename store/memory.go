package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/vouchermacro/macro"
)

type ledgerKey struct {
	business     string
	denomination int
}

type artifactKey struct {
	business string
	name     string
}

// InMemoryStore implements Store using maps. Safe for concurrent use.
type InMemoryStore struct {
	templates  map[string]string
	fragments  macro.FragmentSet
	businesses map[string]*Business
	ledgers    map[ledgerKey]*Ledger
	artifacts  map[string]*Artifact
	byName     map[artifactKey]string
	mu         sync.RWMutex
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		templates:  make(map[string]string),
		fragments:  make(macro.FragmentSet),
		businesses: make(map[string]*Business),
		ledgers:    make(map[ledgerKey]*Ledger),
		artifacts:  make(map[string]*Artifact),
		byName:     make(map[artifactKey]string),
	}
}

// GetTemplate returns the template stored under name.
func (s *InMemoryStore) GetTemplate(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("template %s: %w", name, ErrNotFound)
	}
	return content, nil
}

// PutTemplate replaces the template stored under name.
func (s *InMemoryStore) PutTemplate(_ context.Context, name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates[name] = content
	return nil
}

// Fragments returns a copy of the fragment library.
func (s *InMemoryStore) Fragments(context.Context) (macro.FragmentSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(macro.FragmentSet, len(s.fragments))
	for k, v := range s.fragments {
		set[k] = v
	}
	return set, nil
}

// PutFragment replaces one snippet of the fragment library.
func (s *InMemoryStore) PutFragment(_ context.Context, kind macro.FragmentKind, index int, content string) error {
	if err := checkFragmentIndex(index); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fragments[macro.FragmentKey{Kind: kind, Index: index}] = content
	return nil
}

// UpsertBusiness creates or updates a business.
func (s *InMemoryStore) UpsertBusiness(_ context.Context, b *Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	stored := *b
	if existing, ok := s.businesses[b.Name]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.businesses[b.Name] = &stored

	b.CreatedAt = stored.CreatedAt
	b.UpdatedAt = stored.UpdatedAt
	return nil
}

// GetBusiness retrieves a business by name.
func (s *InMemoryStore) GetBusiness(_ context.Context, name string) (*Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.businesses[name]
	if !ok {
		return nil, fmt.Errorf("business %s: %w", name, ErrNotFound)
	}
	out := *b
	return &out, nil
}

// ListBusinesses returns all businesses ordered by name.
func (s *InMemoryStore) ListBusinesses(context.Context) ([]*Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Business, 0, len(s.businesses))
	for _, b := range s.businesses {
		out := *b
		list = append(list, &out)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// DeleteBusiness removes a business with its ledgers and artifacts.
func (s *InMemoryStore) DeleteBusiness(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.businesses[name]; !ok {
		return fmt.Errorf("business %s: %w", name, ErrNotFound)
	}
	delete(s.businesses, name)

	for k := range s.ledgers {
		if k.business == name {
			delete(s.ledgers, k)
		}
	}
	for k, id := range s.byName {
		if k.business == name {
			delete(s.byName, k)
			delete(s.artifacts, id)
		}
	}
	return nil
}

// EnsureLedger returns the existing ledger or creates one.
func (s *InMemoryStore) EnsureLedger(_ context.Context, business string, denomination int) (*Ledger, error) {
	if denomination <= 0 {
		return nil, fmt.Errorf("%w: denomination %d must be positive", macro.ErrInvalidInput, denomination)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.businesses[business]; !ok {
		return nil, fmt.Errorf("business %s: %w", business, ErrNotFound)
	}

	key := ledgerKey{business: business, denomination: denomination}
	l, ok := s.ledgers[key]
	if !ok {
		l = &Ledger{
			Business:      business,
			Denomination:  denomination,
			FileReference: uuid.New().String(),
			CreatedAt:     time.Now(),
		}
		s.ledgers[key] = l
	}
	out := *l
	return &out, nil
}

// ListLedgers returns the ledgers of a business by ascending denomination.
func (s *InMemoryStore) ListLedgers(_ context.Context, business string) ([]*Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*Ledger
	for k, l := range s.ledgers {
		if k.business == business {
			out := *l
			list = append(list, &out)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Denomination < list[j].Denomination })
	return list, nil
}

// PutArtifact creates or overwrites an artifact.
func (s *InMemoryStore) PutArtifact(_ context.Context, business, name string, content []byte) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.businesses[business]; !ok {
		return nil, fmt.Errorf("business %s: %w", business, ErrNotFound)
	}

	now := time.Now()
	key := artifactKey{business: business, name: name}
	id, ok := s.byName[key]
	a := s.artifacts[id]
	if !ok {
		id = uuid.New().String()
		a = &Artifact{ID: id, Business: business, Name: name, CreatedAt: now}
		s.byName[key] = id
		s.artifacts[id] = a
	}
	a.Content = append([]byte(nil), content...)
	a.UpdatedAt = now

	out := *a
	return &out, nil
}

// GetArtifact retrieves an artifact by ID.
func (s *InMemoryStore) GetArtifact(_ context.Context, id string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[id]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	out := *a
	out.Content = append([]byte(nil), a.Content...)
	return &out, nil
}

var _ Store = (*InMemoryStore)(nil)

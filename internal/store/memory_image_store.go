package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dunamismax/pixelvault/internal/domain"
)

type MemoryImageStore struct {
	mu     sync.RWMutex
	images map[string]memoryEntry
	seq    uint64
}

type memoryEntry struct {
	rec domain.ImageRecord
	seq uint64
}

func NewMemoryImageStore() *MemoryImageStore {
	return &MemoryImageStore{
		images: make(map[string]memoryEntry),
	}
}

func (s *MemoryImageStore) Create(ctx context.Context, rec domain.ImageRecord) (domain.ImageRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ImageRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.images[rec.ID]; ok {
		return domain.ImageRecord{}, fmt.Errorf("%w: %s", ErrDuplicateImage, rec.ID)
	}
	if rec.IsDerived() {
		parent, ok := s.images[rec.OriginalImage]
		if !ok || parent.rec.Owner != rec.Owner {
			return domain.ImageRecord{}, fmt.Errorf("original image %s: %w", rec.OriginalImage, ErrImageNotFound)
		}
	}

	s.seq++
	s.images[rec.ID] = memoryEntry{rec: rec, seq: s.seq}
	return rec, nil
}

func (s *MemoryImageStore) ListByOwner(ctx context.Context, owner string) ([]domain.ImageRecord, error) {
	return s.list(ctx, func(rec domain.ImageRecord) bool {
		return rec.Owner == owner
	})
}

func (s *MemoryImageStore) FindByIDAndOwner(ctx context.Context, id, owner string) (domain.ImageRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ImageRecord{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.images[id]
	if !ok || entry.rec.Owner != owner {
		return domain.ImageRecord{}, ErrImageNotFound
	}
	return entry.rec, nil
}

func (s *MemoryImageStore) ListDerivatives(ctx context.Context, parentID, owner string) ([]domain.ImageRecord, error) {
	return s.list(ctx, func(rec domain.ImageRecord) bool {
		return rec.Owner == owner && rec.OriginalImage == parentID
	})
}

func (s *MemoryImageStore) Close() error {
	return nil
}

func (s *MemoryImageStore) list(ctx context.Context, keep func(domain.ImageRecord) bool) ([]domain.ImageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries := make([]memoryEntry, 0, len(s.images))
	for _, entry := range s.images {
		if keep(entry.rec) {
			entries = append(entries, entry)
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]domain.ImageRecord, len(entries))
	for i, entry := range entries {
		out[i] = entry.rec
	}
	return out, nil
}

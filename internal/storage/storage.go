// Package storage persists editor documents in key-value slots.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"moodpad/internal/document"
)

var ErrNotFound = errors.New("storage: key not found")

// Slot is a single-value-per-key store. Get returns ErrNotFound for missing keys.
type Slot interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

func EditorKey(mode string) string {
	return mode + "-editor-content"
}

func CollabKey(mode, room string) string {
	return mode + "-collab-" + room
}

// Load reads the document stored under key. A missing or unreadable value
// yields document.Default().
func Load(ctx context.Context, slot Slot, key string) *document.Document {
	raw, err := slot.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("storage: load %s: %v", key, err)
		}
		return document.Default()
	}
	doc, err := document.Parse(raw)
	if err != nil {
		log.Printf("storage: parse %s: %v", key, err)
		return document.Default()
	}
	return doc
}

func Save(ctx context.Context, slot Slot, key string, doc *document.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := slot.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Memory is an in-process slot.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{values: map[string][]byte{}}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

package eventbus

import (
	"context"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus used in tests and when no broker is
// wanted.
type MemoryBus struct {
	mu     sync.RWMutex
	closed bool

	pipeline map[int]chan PipelineEvent
	batch    map[int]subEntry[BatchEvent]
	upload   map[int]subEntry[UploadEvent]
	nextID   int
}

type subEntry[T any] struct {
	key string
	ch  chan T
}

// NewMemoryBus creates an in-process bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		pipeline: make(map[int]chan PipelineEvent),
		batch:    make(map[int]subEntry[BatchEvent]),
		upload:   make(map[int]subEntry[UploadEvent]),
	}
}

// PublishPipeline emits a batch lifecycle event to the global stream
func (b *MemoryBus) PublishPipeline(ctx context.Context, ev PipelineEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.pipeline {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// PublishBatch emits an event on a single batch's stream
func (b *MemoryBus) PublishBatch(ctx context.Context, ev BatchEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, entry := range b.batch {
		if entry.key != ev.BatchID {
			continue
		}
		select {
		case entry.ch <- ev:
		default:
		}
	}
	return nil
}

// PublishUpload emits a progress event for an upload job
func (b *MemoryBus) PublishUpload(ctx context.Context, ev UploadEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, entry := range b.upload {
		if entry.key != ev.JobID {
			continue
		}
		select {
		case entry.ch <- ev:
		default:
		}
	}
	return nil
}

// SubscribePipeline streams global batch lifecycle events
func (b *MemoryBus) SubscribePipeline(ctx context.Context) (<-chan PipelineEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan PipelineEvent, subscriberBuffer)
	b.pipeline[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.pipeline[id]; ok {
			delete(b.pipeline, id)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// SubscribeBatch streams one batch's events
func (b *MemoryBus) SubscribeBatch(ctx context.Context, batchID string) (<-chan BatchEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan BatchEvent, subscriberBuffer)
	b.batch[id] = subEntry[BatchEvent]{key: batchID, ch: ch}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if entry, ok := b.batch[id]; ok {
			delete(b.batch, id)
			close(entry.ch)
		}
	}
	return ch, cancel, nil
}

// SubscribeUpload streams one upload job's progress events
func (b *MemoryBus) SubscribeUpload(ctx context.Context, jobID string) (<-chan UploadEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan UploadEvent, subscriberBuffer)
	b.upload[id] = subEntry[UploadEvent]{key: jobID, ch: ch}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if entry, ok := b.upload[id]; ok {
			delete(b.upload, id)
			close(entry.ch)
		}
	}
	return ch, cancel, nil
}

// Connected always reports true for the in-process bus
func (b *MemoryBus) Connected() bool {
	return true
}

// Close drops all subscriptions
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for id, ch := range b.pipeline {
		delete(b.pipeline, id)
		close(ch)
	}
	for id, entry := range b.batch {
		delete(b.batch, id)
		close(entry.ch)
	}
	for id, entry := range b.upload {
		delete(b.upload, id)
		close(entry.ch)
	}
	return nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package typewriter

import (
	"sync"
	"time"
)

// Default drain settings. One rune per 20ms tick reproduces the linear
// typing effect of the original front-end; callers with cheaper render
// paths can raise the batch size.
const (
	DefaultInterval  = 20 * time.Millisecond
	DefaultBatchSize = 1
)

// Sink receives revealed text. Implementations append it to the target
// message's content (and are responsible for their own locking).
type Sink func(text string)

// =============================================================================
// BUFFER
// =============================================================================

// Buffer is the pending-character queue between a stream session and the
// transcript. It is paired 1:1 with one in-flight AI reply.
//
// Exactly one drain loop may run per buffer. Push starts the loop lazily;
// the loop self-terminates once the queue is empty and the stream is done,
// then fires the optional onIdle callback exactly once. Flush drains
// synchronously and permanently closes the buffer.
type Buffer struct {
	mu       sync.Mutex
	pending  []rune
	running  bool // drain loop active
	done     bool // MarkStreamDone called, no more pushes expected
	closed   bool // Flush called, buffer is dead
	idleSent bool

	interval time.Duration
	batch    int
	sink     Sink
	onIdle   func()

	stopCh   chan struct{}
	loopDone chan struct{}
}

// New creates a buffer that reveals into sink at the default cadence.
// onIdle may be nil; when set, it fires once the queue has fully drained
// after MarkStreamDone.
func New(sink Sink, onIdle func()) *Buffer {
	return NewWithConfig(sink, onIdle, DefaultInterval, DefaultBatchSize)
}

// NewWithConfig creates a buffer with a custom tick interval and batch
// size. Non-positive values fall back to the defaults.
func NewWithConfig(sink Sink, onIdle func(), interval time.Duration, batch int) *Buffer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Buffer{
		interval: interval,
		batch:    batch,
		sink:     sink,
		onIdle:   onIdle,
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Push appends text to the pending queue and starts the drain loop if it
// is not already running. Pushes after Flush are dropped.
func (b *Buffer) Push(text string) {
	if text == "" {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, []rune(text)...)
	start := !b.running
	if start {
		b.running = true
		b.stopCh = make(chan struct{})
		b.loopDone = make(chan struct{})
	}
	b.mu.Unlock()

	if start {
		go b.drainLoop(b.stopCh, b.loopDone)
	}
}

// MarkStreamDone records that no more pushes will occur. The drain loop
// finishes revealing the queue and then stops itself. If the loop is not
// running and nothing is pending, completion is signalled immediately.
func (b *Buffer) MarkStreamDone() {
	b.mu.Lock()
	b.done = true
	idle := !b.running && len(b.pending) == 0 && !b.closed
	b.mu.Unlock()

	if idle {
		b.signalIdle()
	}
}

// Flush synchronously drains all remaining pending characters into the
// sink, stops the loop, and closes the buffer. Used when the user cancels
// or a final frame is about to override the partial reveal. Idempotent.
func (b *Buffer) Flush() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	remaining := string(b.pending)
	b.pending = nil
	stopCh, loopDone := b.stopCh, b.loopDone
	running := b.running
	b.running = false
	b.mu.Unlock()

	if running {
		close(stopCh)
		<-loopDone // loop has stopped; no concurrent sink writes remain
	}
	if remaining != "" {
		b.sink(remaining)
	}
}

// Pending returns the number of not-yet-revealed runes.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Closed reports whether the buffer has been flushed and retired.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// =============================================================================
// DRAIN LOOP
// =============================================================================

// drainLoop pops a fixed batch of runes per tick and reveals them. It
// exits when stopped by Flush or when the queue empties after the stream
// is done. Never runs twice concurrently for one buffer: Push only starts
// it while running is false, and only the loop itself clears running.
func (b *Buffer) drainLoop(stopCh, loopDone chan struct{}) {
	defer close(loopDone)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			b.mu.Lock()
			if b.closed {
				b.mu.Unlock()
				return
			}
			if len(b.pending) > 0 {
				n := b.batch
				if n > len(b.pending) {
					n = len(b.pending)
				}
				chunk := string(b.pending[:n])
				b.pending = b.pending[n:]
				b.mu.Unlock()
				b.sink(chunk)
				continue
			}
			if b.done {
				b.running = false
				b.mu.Unlock()
				b.signalIdle()
				return
			}
			// Queue empty but the stream is still live: idle tick.
			b.mu.Unlock()
		}
	}
}

// signalIdle fires onIdle at most once.
func (b *Buffer) signalIdle() {
	b.mu.Lock()
	if b.idleSent || b.onIdle == nil {
		b.mu.Unlock()
		return
	}
	b.idleSent = true
	b.mu.Unlock()
	b.onIdle()
}

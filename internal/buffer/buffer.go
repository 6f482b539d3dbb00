// Package buffer implements a FIFO message queue that accrues client→server
// messages while a restart is in progress and drains them into the new
// child's stdin once it is ready.
package buffer

import (
	"sync"

	"github.com/neilopet/mcpmon/internal/logger"
	"github.com/neilopet/mcpmon/internal/protocol"
)

// DefaultCeiling bounds the buffer so a stuck spawn cannot exhaust memory.
const DefaultCeiling = 10000

// Buffer is a mutex-guarded, capacity-bounded FIFO of messages.
type Buffer struct {
	mu      sync.Mutex
	items   []*protocol.Message
	ceiling int
}

// New returns an empty Buffer with the given ceiling. A ceiling <= 0 uses
// DefaultCeiling.
func New(ceiling int) *Buffer {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Buffer{ceiling: ceiling}
}

// Append adds m to the tail of the buffer, dropping it with a logged
// warning if the buffer is at its ceiling.
func (b *Buffer) Append(m *protocol.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.ceiling {
		logger.Warnf("message buffer at ceiling (%d); dropping message", b.ceiling)
		return
	}
	b.items = append(b.items, m)
}

// Len reports the number of currently buffered messages.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Drain returns every buffered message in FIFO order and clears the buffer.
func (b *Buffer) Drain() []*protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

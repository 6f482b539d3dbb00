package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/neilopet/mcpmon/internal/protocol"
)

func TestAppendAndDrainFIFO(t *testing.T) {
	b := New(0)
	m1 := &protocol.Message{Method: "a"}
	m2 := &protocol.Message{Method: "b"}
	m3 := &protocol.Message{Method: "c"}

	b.Append(m1)
	b.Append(m2)
	b.Append(m3)
	assert.Equal(t, 3, b.Len())

	drained := b.Drain()
	assert.Equal(t, []*protocol.Message{m1, m2, m3}, drained)
	assert.Equal(t, 0, b.Len())
}

func TestAppendDropsAtCeiling(t *testing.T) {
	b := New(2)
	b.Append(&protocol.Message{Method: "a"})
	b.Append(&protocol.Message{Method: "b"})
	b.Append(&protocol.Message{Method: "c"})

	assert.Equal(t, 2, b.Len())
}

func TestDrainEmpty(t *testing.T) {
	b := New(0)
	assert.Empty(t, b.Drain())
}

// Package transport implements the framer and forwarder: splitting byte
// streams into newline-delimited JSON-RPC messages and running the three
// forwarding pumps.
package transport

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/neilopet/mcpmon/internal/protocol"
)

// Event is one complete line the Framer extracted: either a successfully
// parsed JSON-RPC message, or a raw line that failed to parse (passed
// through unchanged so non-JSON diagnostics on stdout are preserved).
type Event struct {
	Message *protocol.Message
	Raw     string
}

// IsMessage reports whether this event carries a parsed message.
func (e Event) IsMessage() bool { return e.Message != nil }

// Framer splits an incoming byte stream into lines, tolerating partial
// reads by keeping an internal residue buffer across Feed calls. Framing
// errors are never fatal: an unparseable line simply becomes a raw Event.
type Framer struct {
	residue []byte
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends chunk to the residue, splits out every complete line, and
// returns one Event per non-empty line. The trailing partial line (if any)
// is kept as the new residue.
func (f *Framer) Feed(chunk []byte) []Event {
	f.residue = append(f.residue, chunk...)

	var events []Event
	for {
		idx := bytes.IndexByte(f.residue, '\n')
		if idx == -1 {
			break
		}
		line := f.residue[:idx]
		f.residue = f.residue[idx+1:]

		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}

		if m, err := protocol.Parse([]byte(trimmed)); err == nil {
			events = append(events, Event{Message: m})
		} else {
			events = append(events, Event{Raw: trimmed})
		}
	}
	return events
}

// Run reads from r until EOF, ctx cancellation, or a read error, feeding
// each chunk to the Framer and invoking handle for every resulting Event.
func Run(ctx context.Context, r io.Reader, handle func(Event)) error {
	buf := make([]byte, 64*1024)
	framer := NewFramer()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, e := range framer.Feed(buf[:n]) {
				handle(e)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

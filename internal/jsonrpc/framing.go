package jsonrpc

import "bytes"

// recordSeparator delimits messages on both stdio streams.
const recordSeparator = '\n'

// Framer turns an arbitrary sequence of byte chunks into discrete decoded
// JSON-RPC messages. It keeps an internal accumulation buffer: each Push
// splits the accumulated data on the record separator, emits one message
// per complete record, and retains any trailing fragment for the next
// Push. Records that do not parse as JSON-RPC are dropped; partial-line
// noise on a shared pipe must not poison the stream.
//
// Consumption is synchronous and in chunk-arrival order. Framer is not
// safe for concurrent use; each stream owns its own instance.
type Framer struct {
	buf     []byte
	emit    func(*Message)
	dropped int
}

// NewFramer creates a Framer delivering decoded messages to emit.
func NewFramer(emit func(*Message)) *Framer {
	return &Framer{emit: emit}
}

// Push appends a chunk to the accumulation buffer and emits every complete
// record it now contains.
func (f *Framer) Push(chunk []byte) {
	f.buf = append(f.buf, chunk...)

	for {
		idx := bytes.IndexByte(f.buf, recordSeparator)
		if idx == -1 {
			return // no complete record yet
		}

		record := f.buf[:idx]
		f.buf = f.buf[idx+1:]

		trimmed := bytes.TrimSpace(record)
		if len(trimmed) == 0 {
			continue
		}

		msg, err := Parse(trimmed)
		if err != nil {
			f.dropped++
			continue
		}
		f.emit(msg)
	}
}

// Dropped returns the number of records discarded because they were not
// valid JSON-RPC.
func (f *Framer) Dropped() int {
	return f.dropped
}

// Pending returns the size of the retained incomplete fragment.
func (f *Framer) Pending() int {
	return len(f.buf)
}

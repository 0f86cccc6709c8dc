package encoding

import (
	"bytes"
	"encoding/json"
	"log/slog"
)

// Buffers above this size are dropped instead of returned to the pool so a
// single oversized payload cannot pin memory.
const maxPooledBufferBytes = 64 * 1024

// Codec provides JSON encoding backed by a pool of reusable buffers. The
// prediction path serializes small feature maps on every request, so buffer
// reuse is where the allocations go.
type Codec struct {
	buffers chan *bytes.Buffer
	size    int
}

// NewCodec creates a codec with the specified pool size
func NewCodec(size int) *Codec {
	if size <= 0 {
		size = 10
	}

	c := &Codec{
		buffers: make(chan *bytes.Buffer, size),
		size:    size,
	}
	for i := 0; i < size; i++ {
		c.buffers <- &bytes.Buffer{}
	}
	return c
}

func (c *Codec) getBuffer() *bytes.Buffer {
	select {
	case buf := <-c.buffers:
		buf.Reset()
		return buf
	default:
		slog.Debug("Codec buffer pool exhausted, allocating")
		return &bytes.Buffer{}
	}
}

func (c *Codec) putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBufferBytes {
		return
	}
	select {
	case c.buffers <- buf:
	default:
		// Pool full, discard buffer
	}
}

// Marshal encodes v using a pooled buffer. The trailing newline that
// json.Encoder appends is stripped so output matches json.Marshal.
func (c *Codec) Marshal(v interface{}) ([]byte, error) {
	buf := c.getBuffer()
	defer c.putBuffer(buf)

	encoder := json.NewEncoder(buf)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}

	data := buf.Bytes()
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}

	// The buffer goes back to the pool; the caller gets its own copy.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Unmarshal decodes data into v
func (c *Codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// GetStats returns buffer pool statistics
func (c *Codec) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"buffer_pool_size":  c.size,
		"buffers_available": len(c.buffers),
	}
}

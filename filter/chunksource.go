package filter

// ChunkSource is a restartable, single-consumer producer of byte chunks:
// Next returns the next chunk and whether it is valid. A filter is a
// "cooperative coroutine-like producer that yields byte chunks until
// exhaustion" — it only ever suspends at a chunk boundary, so a consumer
// that stops calling Next simply drops the source; there is no mid-chunk
// state to tear down. A ChunkSource is not safe for concurrent use.
type ChunkSource interface {
	// Next returns the next chunk of decoded (or encoded) data. ok is
	// false once the source is exhausted or has failed; once ok is
	// false, every subsequent call returns (nil, false, nil).
	Next() ([]byte, bool, error)
}

// Decoder is a restartable factory for a filter's decoded output: calling
// it again builds an independent ChunkSource that starts over from the
// same source bytes, matching the "restartable by re-constructing it from
// the same source" contract — a Decoder never shares mutable state
// between the ChunkSources it produces.
type Decoder func() ChunkSource

// Encoder is the Decoder's encode-direction counterpart.
type Encoder func() ChunkSource

// NewDecoder returns a Decoder for the named filter applied to data.
// chunkSize bounds how much of the decoded output Next hands back at a
// time (a non-positive chunkSize yields the whole result in one chunk).
// The decode itself is computed in full the first time a ChunkSource it
// produces is polled — the predictor/LZW/Flate algorithms beneath it are
// whole-buffer, exactly as ported — but a ChunkSource built and never
// polled never runs them, and a caller is free to stop consuming early.
func NewDecoder(name string, data []byte, parms *Params, chunkSize int) Decoder {
	return func() ChunkSource {
		return &bufferedChunkSource{
			produce:   func() ([]byte, error) { return Decode(name, data, parms) },
			chunkSize: chunkSize,
		}
	}
}

// NewEncoder is NewDecoder's encode-direction counterpart.
func NewEncoder(name string, data []byte, parms *Params, chunkSize int) Encoder {
	return func() ChunkSource {
		return &bufferedChunkSource{
			produce:   func() ([]byte, error) { return Encode(name, data, parms) },
			chunkSize: chunkSize,
		}
	}
}

// Drain polls src to exhaustion and concatenates every chunk. It is the
// inverse of chunking: most callers in this module want the whole
// decoded buffer at once and only need the ChunkSource contract to hold,
// not to actually consume chunk-by-chunk.
func Drain(src ChunkSource) ([]byte, error) {
	var out []byte
	for {
		chunk, ok, err := src.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, chunk...)
	}
}

// bufferedChunkSource adapts a one-shot produce function into a
// ChunkSource by running it lazily on the first Next call and then
// slicing the result into chunkSize pieces. It holds no file handles or
// background goroutines, so dropping it mid-stream needs no cleanup.
type bufferedChunkSource struct {
	produce   func() ([]byte, error)
	chunkSize int

	started bool
	failed  bool
	buf     []byte
}

func (c *bufferedChunkSource) Next() ([]byte, bool, error) {
	if c.failed {
		return nil, false, nil
	}
	if !c.started {
		c.started = true
		buf, err := c.produce()
		if err != nil {
			c.failed = true
			return nil, false, err
		}
		c.buf = buf
	}
	if len(c.buf) == 0 {
		return nil, false, nil
	}
	size := c.chunkSize
	if size <= 0 || size > len(c.buf) {
		size = len(c.buf)
	}
	chunk := c.buf[:size]
	c.buf = c.buf[size:]
	return chunk, true, nil
}

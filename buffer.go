package emmer

// ReadBuffer holds the full payload of a read transfer and slices it into
// 1-based 512-byte blocks. A payload whose length is an exact multiple of
// 512 produces one extra, empty, trailing block — the RFC 1350 end-of-transfer
// signal.
type ReadBuffer struct {
	data []byte
}

// NewReadBuffer wraps a handler's returned payload for block-wise delivery.
func NewReadBuffer(data []byte) *ReadBuffer {
	return &ReadBuffer{data: data}
}

// BlockCount returns the largest block number this buffer can produce.
func (r *ReadBuffer) BlockCount() uint16 {
	return uint16(len(r.data)/blockSize) + 1
}

// Block returns the bytes of the given 1-based block number.
func (r *ReadBuffer) Block(n uint16) []byte {
	start := int(n-1) * blockSize
	if start < 0 || start > len(r.data) {
		return nil
	}
	end := start + blockSize
	if end > len(r.data) {
		end = len(r.data)
	}
	return r.data[start:end]
}

// WriteBuffer accumulates inbound DATA payloads in receive order.
type WriteBuffer struct {
	data []byte
}

// NewWriteBuffer returns an empty write buffer.
func NewWriteBuffer() *WriteBuffer {
	return &WriteBuffer{}
}

// Append adds a received block's payload to the buffer.
func (w *WriteBuffer) Append(payload []byte) {
	w.data = append(w.data, payload...)
}

// Bytes returns the concatenation of every payload appended so far.
func (w *WriteBuffer) Bytes() []byte {
	return w.data
}

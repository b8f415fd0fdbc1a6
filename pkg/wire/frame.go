package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// MaxFrameSize bounds a single payload.  Source archives and
// artifact bundles travel in one frame, so this is generous.
const MaxFrameSize = 1 << 30

// WriteFrame writes the length prefix and the payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return protoErr("frame of %d bytes exceeds limit", len(payload))
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	_, err := w.Write(frame)
	return err
}

// ReadFrame reads exactly one frame.  It returns io.EOF only when the
// stream ended cleanly before the first byte of a frame; a stream
// that ends part way through a frame is a protocol error.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, protoErr("stream ended inside a frame header")
		}
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, protoErr("frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if got, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, protoErr("stream ended after %d of %d payload bytes", got, n)
		}
		return nil, err
	}
	return payload, nil
}

// Conn speaks the protocol over a byte stream.  Reads are buffered;
// writes go straight to the stream one frame at a time.
type Conn struct {
	r *bufio.Reader
	w io.Writer
}

// NewConn wraps a stream.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{r: bufio.NewReader(rw), w: rw}
}

// WriteRequest encodes and sends a request.
func (c *Conn) WriteRequest(r Request) error {
	b, err := EncodeRequest(r)
	if err != nil {
		return err
	}
	return WriteFrame(c.w, b)
}

// ReadRequest receives and decodes a request.
func (c *Conn) ReadRequest() (Request, error) {
	b, err := ReadFrame(c.r)
	if err != nil {
		return nil, err
	}
	return DecodeRequest(b)
}

// WriteResponse encodes and sends a response.
func (c *Conn) WriteResponse(r Response) error {
	b, err := EncodeResponse(r)
	if err != nil {
		return err
	}
	return WriteFrame(c.w, b)
}

// ReadResponse receives and decodes a response.
func (c *Conn) ReadResponse() (Response, error) {
	b, err := ReadFrame(c.r)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(b)
}

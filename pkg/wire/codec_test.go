package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/tess/pkg/builderr"
	"github.com/the-maldridge/tess/pkg/types"
)

func TestRequestRoundTrip(t *testing.T) {
	reqs := []Request{
		Heartbeat{},
		BuildRequest{
			Unit: types.BuildUnit{
				Name:         "core",
				Dependencies: []string{"serde", "util"},
				SourceFiles:  []string{"/src/core/src/lib.rs"},
				Artifacts:    []string{"core"},
			},
			Release: true,
			Target:  "x86_64-unknown-linux-musl",
			Archive: []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00},
		},
		BuildRequest{Unit: types.BuildUnit{Name: "bare"}},
	}
	for _, r := range reqs {
		b, err := EncodeRequest(r)
		require.NoError(t, err)
		got, err := DecodeRequest(b)
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resps := []Response{
		HeartbeatAck{},
		BuildOutput{UnitName: "core", Line: "   Compiling core v0.1.0", IsError: false},
		BuildOutput{UnitName: "core", Line: "error[E0432]: unresolved import", IsError: true},
		BuildComplete{UnitName: "core", Artifacts: []types.ArtifactRef{
			{Path: "libcore.rlib", Data: []byte("rlib")},
			{Path: "deps/core-1234", Data: []byte{0, 1, 2}},
		}},
		BuildComplete{UnitName: "empty"},
		BuildError{UnitName: "foo", Message: "E0432"},
	}
	for _, r := range resps {
		b, err := EncodeResponse(r)
		require.NoError(t, err)
		got, err := DecodeResponse(b)
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestHeartbeatIsTagOnly(t *testing.T) {
	b, err := EncodeRequest(Heartbeat{})
	require.NoError(t, err)
	assert.Equal(t, []byte{tagHeartbeat}, b)

	_, err = DecodeRequest([]byte{tagHeartbeat, 0x00})
	assert.True(t, builderr.Is(err, builderr.KindProtocol))
}

func TestDecodeRejectsUnknownAndTruncated(t *testing.T) {
	_, err := DecodeRequest([]byte{0x7f})
	assert.True(t, builderr.Is(err, builderr.KindProtocol))

	_, err = DecodeResponse([]byte{0x7f})
	assert.True(t, builderr.Is(err, builderr.KindProtocol))

	_, err = DecodeResponse(nil)
	assert.True(t, builderr.Is(err, builderr.KindProtocol))

	b, err := EncodeResponse(BuildError{UnitName: "foo", Message: "E0432"})
	require.NoError(t, err)
	_, err = DecodeResponse(b[:len(b)-2])
	assert.True(t, builderr.Is(err, builderr.KindProtocol))

	_, err = DecodeResponse(append(b, 0xc0))
	assert.True(t, builderr.Is(err, builderr.KindProtocol))
}

func TestFrameRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteFrame(buf, []byte("hello")))
	require.NoError(t, WriteFrame(buf, nil))

	assert.Equal(t, []byte{0, 0, 0, 5}, buf.Bytes()[:4])

	p, err := ReadFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(p))

	p, err = ReadFrame(buf)
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = ReadFrame(buf)
	assert.Equal(t, io.EOF, err)
}

func TestFrameShortReads(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0}))
	assert.True(t, builderr.Is(err, builderr.KindProtocol))

	_, err = ReadFrame(bytes.NewReader([]byte{0, 0, 0, 9, 'a', 'b'}))
	assert.True(t, builderr.Is(err, builderr.KindProtocol))

	_, err = ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}))
	assert.True(t, builderr.Is(err, builderr.KindProtocol))
}

// trickle hands out one byte per Read to prove frames are
// reassembled from partial reads.
type trickle struct{ r io.Reader }

func (t trickle) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return t.r.Read(p[:1])
}

func TestConnReassemblesPartialReads(t *testing.T) {
	buf := new(bytes.Buffer)
	w := NewConn(struct {
		io.Reader
		io.Writer
	}{bytes.NewReader(nil), buf})
	require.NoError(t, w.WriteResponse(BuildOutput{UnitName: "a", Line: "one"}))
	require.NoError(t, w.WriteResponse(BuildError{UnitName: "a", Message: "two"}))

	r := NewConn(struct {
		io.Reader
		io.Writer
	}{trickle{buf}, io.Discard})

	first, err := r.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, BuildOutput{UnitName: "a", Line: "one"}, first)

	second, err := r.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, BuildError{UnitName: "a", Message: "two"}, second)

	_, err = r.ReadResponse()
	assert.Equal(t, io.EOF, err)
}

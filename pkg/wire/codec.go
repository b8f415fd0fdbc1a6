// Package wire implements the length prefixed binary protocol spoken
// between the client and a build worker.
//
// Every frame is a big endian uint32 length followed by that many
// bytes of payload.  The first payload byte names the message
// variant; the remainder is the msgpack encoding of the variant's
// fields, and is empty for Heartbeat and HeartbeatAck.
package wire

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/the-maldridge/tess/pkg/builderr"
)

func protoErr(format string, args ...interface{}) error {
	return builderr.Newf(builderr.KindProtocol, "", format, args...)
}

// EncodeRequest encodes a request payload.
func EncodeRequest(r Request) ([]byte, error) {
	switch m := r.(type) {
	case Heartbeat:
		return []byte{tagHeartbeat}, nil
	case BuildRequest:
		return encodeBody(tagBuild, &m)
	default:
		return nil, protoErr("cannot encode request of type %T", r)
	}
}

// DecodeRequest decodes a request payload.
func DecodeRequest(b []byte) (Request, error) {
	if len(b) == 0 {
		return nil, protoErr("empty payload")
	}
	switch b[0] {
	case tagHeartbeat:
		if err := expectEmpty(b); err != nil {
			return nil, err
		}
		return Heartbeat{}, nil
	case tagBuild:
		var m BuildRequest
		if err := decodeBody(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, protoErr("unknown request tag 0x%02x", b[0])
	}
}

// EncodeResponse encodes a response payload.
func EncodeResponse(r Response) ([]byte, error) {
	switch m := r.(type) {
	case HeartbeatAck:
		return []byte{tagHeartbeatAck}, nil
	case BuildOutput:
		return encodeBody(tagBuildOutput, &m)
	case BuildComplete:
		return encodeBody(tagBuildComplete, &m)
	case BuildError:
		return encodeBody(tagBuildError, &m)
	default:
		return nil, protoErr("cannot encode response of type %T", r)
	}
}

// DecodeResponse decodes a response payload.
func DecodeResponse(b []byte) (Response, error) {
	if len(b) == 0 {
		return nil, protoErr("empty payload")
	}
	switch b[0] {
	case tagHeartbeatAck:
		if err := expectEmpty(b); err != nil {
			return nil, err
		}
		return HeartbeatAck{}, nil
	case tagBuildOutput:
		var m BuildOutput
		if err := decodeBody(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case tagBuildComplete:
		var m BuildComplete
		if err := decodeBody(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case tagBuildError:
		var m BuildError
		if err := decodeBody(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, protoErr("unknown response tag 0x%02x", b[0])
	}
}

func encodeBody(tag byte, v interface{}) ([]byte, error) {
	buf := bytes.NewBuffer([]byte{tag})
	if err := msgpack.NewEncoder(buf).Encode(v); err != nil {
		return nil, builderr.Wrap(builderr.KindProtocol, "", err, fmt.Sprintf("encoding tag 0x%02x", tag))
	}
	return buf.Bytes(), nil
}

func decodeBody(b []byte, v interface{}) error {
	r := bytes.NewReader(b[1:])
	if err := msgpack.NewDecoder(r).Decode(v); err != nil {
		return builderr.Wrap(builderr.KindProtocol, "", err, fmt.Sprintf("decoding tag 0x%02x", b[0]))
	}
	if r.Len() != 0 {
		return protoErr("%d trailing bytes after tag 0x%02x", r.Len(), b[0])
	}
	return nil
}

func expectEmpty(b []byte) error {
	if len(b) != 1 {
		return protoErr("unexpected body on tag 0x%02x", b[0])
	}
	return nil
}

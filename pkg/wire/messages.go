package wire

import (
	"github.com/the-maldridge/tess/pkg/types"
)

// A Request is sent by the client to a worker.  The concrete type is
// one of Heartbeat or BuildRequest.
type Request interface {
	requestTag() byte
}

// A Response is sent by a worker to the client.  The concrete type
// is one of HeartbeatAck, BuildOutput, BuildComplete or BuildError.
type Response interface {
	responseTag() byte
}

// Request tags.
const (
	tagHeartbeat byte = 0x01
	tagBuild     byte = 0x02
)

// Response tags.
const (
	tagHeartbeatAck  byte = 0x01
	tagBuildOutput   byte = 0x02
	tagBuildComplete byte = 0x03
	tagBuildError    byte = 0x04
)

// Heartbeat is a liveness check sent before real work.
type Heartbeat struct{}

// BuildRequest submits one unit together with its source archive.
// An empty Target builds for the worker's host.
type BuildRequest struct {
	Unit    types.BuildUnit `msgpack:"unit"`
	Release bool            `msgpack:"release"`
	Target  string          `msgpack:"target"`
	Archive []byte          `msgpack:"archive"`
}

// HeartbeatAck answers a Heartbeat.
type HeartbeatAck struct{}

// BuildOutput is one line of toolchain output.
type BuildOutput struct {
	UnitName string `msgpack:"unit_name"`
	Line     string `msgpack:"line"`
	IsError  bool   `msgpack:"is_error"`
}

// BuildComplete ends a successful build and carries its artifacts.
type BuildComplete struct {
	UnitName  string              `msgpack:"unit_name"`
	Artifacts []types.ArtifactRef `msgpack:"artifacts"`
}

// BuildError ends a failed build.
type BuildError struct {
	UnitName string `msgpack:"unit_name"`
	Message  string `msgpack:"message"`
}

func (Heartbeat) requestTag() byte    { return tagHeartbeat }
func (BuildRequest) requestTag() byte { return tagBuild }

func (HeartbeatAck) responseTag() byte  { return tagHeartbeatAck }
func (BuildOutput) responseTag() byte   { return tagBuildOutput }
func (BuildComplete) responseTag() byte { return tagBuildComplete }
func (BuildError) responseTag() byte    { return tagBuildError }

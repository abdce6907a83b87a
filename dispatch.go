// Package wireghost is the Dispatch Core: a transparent, pluggable
// interception layer for a length-prefixed binary message stream
// between a game client and server. Dispatch is the public facade;
// hook, pipeline, codec, sysmsg, modulehost, transform and transport
// are its supporting packages.
package wireghost

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/wireghost/wireghost/codec"
	"github.com/wireghost/wireghost/hook"
	"github.com/wireghost/wireghost/modulehost"
	"github.com/wireghost/wireghost/pipeline"
	"github.com/wireghost/wireghost/sysmsg"
	"github.com/wireghost/wireghost/transform"
)

// CheckVersionOpcode is the numeric opcode of the version-negotiation
// probe frame, handled specially by Handle before any protocol version
// has been set.
const CheckVersionOpcode hook.Opcode = 19900

// IOCollaborator is the small seam Dispatch needs from whatever reads
// and writes the wire (the reference transport, or any other).
type IOCollaborator interface {
	SendServer(data []byte) error
	SendClient(data []byte) error
}

// VersionProbe is the structural shape of the CheckVersion message:
// index 0 carries the probing client's own protocol version in the
// first element of Version. Whoever wires the Codec Registry's
// CheckVersion mapping must register VersionProbe (or *VersionProbe)
// as that message's sample: runVersionProbe only recognizes a parse
// result of type *VersionProbe.
type VersionProbe struct {
	Index   int   `json:"index"`
	Version []int `json:"version"`
}

// Dispatch is one proxied session's Dispatch Facade: version
// negotiation, Write for synthesized frames, Handle for frames off the
// wire, plus the Module Host for loading/unloading extension modules.
type Dispatch struct {
	Codec   *codec.Registry
	Sysmsg  *sysmsg.Table
	Hooks   *hook.Registry
	Modules *modulehost.Host

	pipeline  *pipeline.Pipeline
	transform *transform.Chain
	io        IOCollaborator
	log       Logger

	state       ProtocolState
	hasProtocol bool
}

// New builds a Dispatch around a populated Codec Registry and
// System-Message Table. io may be nil for tests that never call
// Write's forwarding step.
func New(codecRegistry *codec.Registry, sysmsgTable *sysmsg.Table, io IOCollaborator, cfg Config) *Dispatch {
	d := &Dispatch{
		Codec:  codecRegistry,
		Sysmsg: sysmsgTable,
		io:     io,
		log:    getLogger(),
	}
	d.Hooks = hook.New(codecRegistry)
	d.pipeline = pipeline.New(d.Hooks, codecRegistry, d.onPipelineError)
	d.Modules = modulehost.New(d.Hooks, d, d.onModuleEvent)
	if cfg.EnableTransformChain {
		d.transform = transform.New()
	}
	if cfg.InitialProtocolVersion != 0 {
		d.SetProtocolVersion(cfg.InitialProtocolVersion)
	}
	return d
}

// AddTransformStage appends a stage to the Frame Transform Chain,
// enabling the chain if it was not already.
func (d *Dispatch) AddTransformStage(stage transform.Stage) {
	if d.transform == nil {
		d.transform = transform.New()
	}
	d.transform.Append(stage)
}

func (d *Dispatch) onPipelineError(msg string, err error, fields map[string]any) {
	d.log.Error(msg, err, fields)
}

func (d *Dispatch) onModuleEvent(msg string, err error, fields map[string]any) {
	if err != nil {
		d.log.Error(msg, err, fields)
		return
	}
	d.log.Info(msg, fields)
}

// SetProtocolVersion stores v, resolves its codec map, and parses the
// associated revision string. v == 0 is silently accepted (used for
// pre-negotiation state); an unmapped v is logged and left as a no-op
// on the codec side, but v is still remembered on the Dispatch.
func (d *Dispatch) SetProtocolVersion(v int) error {
	if v == 0 {
		return nil
	}
	revision, ok := d.Codec.RevisionString(v)
	if !ok {
		d.log.Error("protocol version not mapped", nil, map[string]any{"version": v})
		d.state = ProtocolState{Version: v}
		d.hasProtocol = true
		return nil
	}

	state, err := parseRevisionString(revision)
	if err != nil {
		d.log.Error("malformed revision string", err, map[string]any{"version": v, "revision": revision})
		return errors.Wrapf(err, "wireghost: protocol version %d", v)
	}
	state.Version = v
	d.state = state
	d.hasProtocol = true
	d.Codec.SetActiveProtocolVersion(v)
	d.log.Info("protocol version set", map[string]any{
		"version": v, "region": state.Region, "major": state.MajorPatchVersion, "minor": state.MinorPatchVersion,
	})
	return nil
}

// ProtocolState returns a snapshot of the currently negotiated version.
func (d *Dispatch) ProtocolState() ProtocolState { return d.state }

// HasProtocolVersion reports whether SetProtocolVersion has ever been
// called with a non-zero version.
func (d *Dispatch) HasProtocolVersion() bool { return d.hasProtocol }

func (d *Dispatch) sysmsgVersion() int {
	return d.state.sysmsgTableVersion()
}

// isVersionProbe reports whether data looks like the CheckVersion
// negotiation frame: its opcode matches the sentinel and no protocol
// version has been set yet.
func (d *Dispatch) isVersionProbe(data []byte) bool {
	if d.hasProtocol {
		return false
	}
	opcode, err := pipeline.OpcodeOf(data)
	return err == nil && opcode == CheckVersionOpcode
}

// runVersionProbe implements Handle's step 1: parse the probe under
// the first codec-known protocol version and, if the probe's index is
// 0, adopt its embedded version. Parse or structural failures are
// logged and otherwise ignored — the frame keeps flowing through the
// normal pipeline afterward.
func (d *Dispatch) runVersionProbe(data []byte) {
	first, ok := d.Codec.FirstProtocolVersion()
	if !ok {
		return
	}
	parsed, err := d.Codec.ParseUnderProtocolVersion(first, CheckVersionOpcode, 1, data)
	if err != nil {
		d.log.Error("version probe parse failed", err, map[string]any{"protoVer": first})
		return
	}
	probe, ok := parsed.(*VersionProbe)
	if !ok || len(probe.Version) == 0 {
		return
	}
	if probe.Index == 0 {
		d.SetProtocolVersion(probe.Version[0])
	}
}

// Handle runs a frame off the wire through the Handler Pipeline,
// after the version-probe special case and the inbound Frame Transform
// Chain (if enabled). A frame that arrives transform-encoded (e.g.
// compressed) is decoded before hooks see it and re-encoded afterward,
// so the bytes Handle returns stay wire-compatible with whatever the
// peer expects — the chain is symmetric on both the read and forward
// side, not merely an inspection step.
func (d *Dispatch) Handle(data []byte, incoming, fake bool) ([]byte, error) {
	if d.isVersionProbe(data) {
		d.runVersionProbe(data)
	}

	payload := data
	if d.transform != nil && len(data) > 4 {
		decoded, err := d.transform.Decode(data[4:])
		if err != nil {
			d.log.Error("inbound transform chain failed, dropping frame", err, nil)
			return nil, pipeline.ErrSuppressed
		}
		payload = rebuildFrame(data[:4], decoded)
	}

	out, err := d.pipeline.Handle(payload, incoming, fake)
	if err != nil {
		return out, err
	}

	if d.transform != nil && len(out) > 4 {
		encoded, terr := d.transform.Encode(out[4:])
		if terr != nil {
			d.log.Error("outbound re-encode after inbound transform failed, dropping frame", terr, nil)
			return nil, pipeline.ErrSuppressed
		}
		out = rebuildFrame(out[:4], encoded)
	}

	return out, nil
}

// rebuildFrame reassembles a frame from a 4-byte header template and a
// new payload, recomputing the 2-byte little-endian length prefix to
// match the payload's actual size instead of carrying over the stale
// pre-transform length.
func rebuildFrame(header []byte, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	copy(out, header)
	binary.LittleEndian.PutUint16(out[0:2], uint16(4+len(payload)))
	copy(out[4:], payload)
	return out
}

// Write serializes name/data via the Codec Registry (unless data is
// already raw bytes), re-enters Handle as a fake frame so other hooks
// observe synthesized traffic, runs the outbound Frame Transform
// Chain, and forwards the result to the I/O collaborator.
func (d *Dispatch) Write(outgoing bool, nameOrBytes any, version int, data any) (bool, error) {
	var raw []byte
	switch v := nameOrBytes.(type) {
	case []byte:
		raw = v
	case string:
		opcode, ok := d.Codec.OpcodeForName(v)
		if !ok {
			d.log.Error("write: unmapped message name", nil, map[string]any{"name": v})
			return false, errors.Wrapf(ErrUnmappedName, "name %q", v)
		}
		if latest, ok := d.Codec.LatestDefVersion(v); ok && version < latest {
			d.log.Info("write: serializing with an older definition version than latest known", map[string]any{
				"name": v, "requested": version, "latest": latest,
			})
		}
		bytes, err := d.Codec.Write(opcode, version, data)
		if err != nil {
			d.log.Error("write: serialize failed", err, map[string]any{"name": v, "version": version})
			return false, errors.Wrapf(ErrCodecFailure, "write %q", v)
		}
		raw = bytes
	default:
		return false, errors.Wrapf(ErrInvalidArgument, "write: nameOrBytes must be []byte or string, got %T", nameOrBytes)
	}

	out, err := d.pipeline.Handle(raw, !outgoing, true)
	if err != nil {
		if errors.Cause(err) == pipeline.ErrSuppressed {
			return false, nil
		}
		return false, err
	}

	if d.transform != nil && len(out) > 4 {
		encoded, terr := d.transform.Encode(out[4:])
		if terr != nil {
			d.log.Error("write: outbound transform chain failed", terr, nil)
			return false, terr
		}
		out = rebuildFrame(out[:4], encoded)
	}

	if d.io == nil {
		return true, nil
	}
	if outgoing {
		return true, d.io.SendServer(out)
	}
	return true, d.io.SendClient(out)
}

// ParseSystemMessage decodes wire text "@<id>(\v<key>\v<value>)*" at
// the currently negotiated sysmsg version.
func (d *Dispatch) ParseSystemMessage(raw string) (*sysmsg.Message, error) {
	return sysmsg.Parse(d.Sysmsg, d.sysmsgVersion(), raw)
}

// BuildSystemMessage encodes id and pairs into wire text at the
// currently negotiated sysmsg version. Token order follows pairs's
// order exactly.
func (d *Dispatch) BuildSystemMessage(id string, pairs []sysmsg.Pair) (string, error) {
	return sysmsg.Build(d.Sysmsg, d.sysmsgVersion(), id, pairs)
}

// Reset unloads every module (invoking destructors) and clears the
// hook registry, returning the Dispatch to a freshly-constructed state
// apart from protocol negotiation.
func (d *Dispatch) Reset() {
	d.Modules.UnloadAll()
	d.Hooks.Clear()
}

package wireghost

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ProtocolState holds everything a Dispatch knows about the currently
// negotiated protocol version: the raw version number, the parsed
// revision-string components, and which sysmsg table that maps to.
type ProtocolState struct {
	Version           int
	Region            string
	MajorPatchVersion int
	MinorPatchVersion int
	SysmsgVersion     int
	HasSysmsgVersion  bool
}

// ErrInvalidRevisionString is returned by parseRevisionString for text
// that does not match "(REGION-)?MAJOR(.MINOR)?(/SYSMSG)?".
var ErrInvalidRevisionString = errors.New("wireghost: invalid revision string")

// parseRevisionString parses "(REGION-)?MAJOR(.MINOR)?(/SYSMSG)?" into
// its components. MAJOR is required; everything else defaults to zero
// (region empty, minor 0, no explicit sysmsg version).
func parseRevisionString(s string) (ProtocolState, error) {
	var state ProtocolState

	rest := s
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		sysmsg, err := strconv.Atoi(rest[slash+1:])
		if err != nil {
			return ProtocolState{}, errors.Wrapf(ErrInvalidRevisionString, "bad sysmsg segment in %q", s)
		}
		state.SysmsgVersion = sysmsg
		state.HasSysmsgVersion = true
		rest = rest[:slash]
	}

	if dash := strings.LastIndexByte(rest, '-'); dash >= 0 {
		state.Region = rest[:dash]
		rest = rest[dash+1:]
	}

	major := rest
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		major = rest[:dot]
		minor, err := strconv.Atoi(rest[dot+1:])
		if err != nil {
			return ProtocolState{}, errors.Wrapf(ErrInvalidRevisionString, "bad minor segment in %q", s)
		}
		state.MinorPatchVersion = minor
	}
	majorVal, err := strconv.Atoi(major)
	if err != nil {
		return ProtocolState{}, errors.Wrapf(ErrInvalidRevisionString, "bad major segment in %q", s)
	}
	state.MajorPatchVersion = majorVal

	return state, nil
}

// sysmsgTableVersion picks which version the System-Message Table
// should be queried at: the explicit sysmsg version if the revision
// string carried one, else the major patch version, per the
// specification's fallback rule.
func (p ProtocolState) sysmsgTableVersion() int {
	if p.HasSysmsgVersion {
		return p.SysmsgVersion
	}
	return p.MajorPatchVersion
}

// Package sysmsg implements the System-Message Table: a bidirectional
// name/numeric-code map keyed by a protocol's patch-version tuple, plus
// the textual wire format system messages travel in.
package sysmsg

import (
	"sort"

	"github.com/pkg/errors"
)

var (
	ErrUnknownID      = errors.New("sysmsg: id not mapped for selected version")
	ErrNoVersionTable = errors.New("sysmsg: no system-message table registered")
)

// codeMap is the bidirectional map bound to one version.
type codeMap struct {
	nameToCode map[string]int
	codeToName map[int]string
}

// Table is the reference System-Message Table: versions are looked up
// by an explicit sysmsgVersion if present, else the nearest known
// version at or below the requested one, the way system messages are
// typically versioned more coarsely than regular protocol messages.
type Table struct {
	versions map[int]*codeMap
	sorted   []int // ascending, kept in sync with versions
}

// New creates an empty Table.
func New() *Table {
	return &Table{versions: make(map[int]*codeMap)}
}

// Register binds name to code under version. Call once per (version,
// name) pair while loading protocol definitions.
func (t *Table) Register(version int, name string, code int) {
	m, ok := t.versions[version]
	if !ok {
		m = &codeMap{nameToCode: make(map[string]int), codeToName: make(map[int]string)}
		t.versions[version] = m
		t.sorted = insertSorted(t.sorted, version)
	}
	m.nameToCode[name] = code
	m.codeToName[code] = name
}

func insertSorted(s []int, v int) []int {
	i := sort.SearchInts(s, v)
	if i < len(s) && s[i] == v {
		return s
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// resolve finds the map for the nearest known version at or below
// requested, falling back to the lowest known version if requested is
// lower than everything registered (matches "coarser than regular
// messages" versioning: an old client asking for a message that
// predates its own version still gets the oldest known table).
func (t *Table) resolve(requested int) (*codeMap, bool) {
	if len(t.sorted) == 0 {
		return nil, false
	}
	idx := sort.SearchInts(t.sorted, requested+1) - 1
	if idx < 0 {
		idx = 0
	}
	return t.versions[t.sorted[idx]], true
}

// NameForCode resolves a numeric system-message code to its name under
// the table nearest to version.
func (t *Table) NameForCode(version, code int) (string, bool) {
	m, ok := t.resolve(version)
	if !ok {
		return "", false
	}
	name, ok := m.codeToName[code]
	return name, ok
}

// CodeForName resolves a system-message name to its numeric code under
// the table nearest to version.
func (t *Table) CodeForName(version int, name string) (int, bool) {
	m, ok := t.resolve(version)
	if !ok {
		return 0, false
	}
	code, ok := m.nameToCode[name]
	return code, ok
}

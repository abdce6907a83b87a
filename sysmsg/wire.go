package sysmsg

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const sep = "\v" // vertical tab, 0x0B

// ErrInvalidSystemMessage covers malformed wire text: missing the
// leading '@' or an odd key/value tail.
var ErrInvalidSystemMessage = errors.New("sysmsg: malformed system message")

// Pair is one key/value token pair, kept as a slice rather than a map
// so Build's token order matches the caller's iteration order exactly,
// per the wire format's ordering rule.
type Pair struct {
	Key, Value string
}

// Message is a parsed system message: ID is either the table-resolved
// name, or the literal id text if it contained a colon (never numeric
// once parsed).
type Message struct {
	ID    string
	Pairs []Pair
}

// Parse decodes wire text of the form "@<id>(\v<key>\v<value>)*". id is
// either a literal containing ':' (kept verbatim) or a decimal code
// resolved to a name via table at version.
func Parse(table *Table, version int, raw string) (*Message, error) {
	if !strings.HasPrefix(raw, "@") {
		return nil, errors.Wrap(ErrInvalidSystemMessage, "missing leading '@'")
	}
	tokens := strings.Split(raw[1:], sep)
	if len(tokens) == 0 || tokens[0] == "" {
		return nil, errors.Wrap(ErrInvalidSystemMessage, "missing id")
	}

	idToken := tokens[0]
	id := idToken
	if !strings.Contains(idToken, ":") {
		code, err := strconv.Atoi(idToken)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidSystemMessage, "id %q is neither literal nor numeric", idToken)
		}
		name, ok := table.NameForCode(version, code)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownID, "code %d", code)
		}
		id = name
	}

	rest := tokens[1:]
	if len(rest)%2 != 0 {
		return nil, errors.Wrap(ErrInvalidSystemMessage, "odd number of key/value tokens")
	}
	pairs := make([]Pair, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		pairs = append(pairs, Pair{Key: rest[i], Value: rest[i+1]})
	}
	return &Message{ID: id, Pairs: pairs}, nil
}

// Build is Parse's inverse: id is either a literal containing ':' (used
// verbatim) or a name resolved to its numeric code via table at version.
func Build(table *Table, version int, id string, pairs []Pair) (string, error) {
	var b strings.Builder
	b.WriteByte('@')
	if strings.Contains(id, ":") {
		b.WriteString(id)
	} else {
		code, ok := table.CodeForName(version, id)
		if !ok {
			return "", errors.Wrapf(ErrUnknownID, "name %q", id)
		}
		b.WriteString(strconv.Itoa(code))
	}
	for _, p := range pairs {
		b.WriteString(sep)
		b.WriteString(p.Key)
		b.WriteString(sep)
		b.WriteString(p.Value)
	}
	return b.String(), nil
}

package transform

import "github.com/pkg/errors"

// ErrNoCipherKey is returned by CipherStage when it runs before a key
// has ever been set; key negotiation itself is out of this module's
// scope (see the specification's Non-goals).
var ErrNoCipherKey = errors.New("transform: cipher stage has no key set")

// CipherStage is a placeholder symmetric stage keyed by a
// session-negotiated key. It only consumes a key once one is set; the
// negotiation mechanism that produces that key lives outside this
// package. XOR is not a real cipher — it stands in for whatever
// session cipher the original proxy's key exchange agreed on.
type CipherStage struct {
	key []byte
}

func NewCipherStage() *CipherStage { return &CipherStage{} }

// SetKey installs the session key. Safe to call again to rotate keys.
func (s *CipherStage) SetKey(key []byte) {
	s.key = append([]byte(nil), key...)
}

func (s *CipherStage) Name() string { return "cipher" }

func (s *CipherStage) Encode(payload []byte) ([]byte, error) {
	return s.xor(payload)
}

func (s *CipherStage) Decode(payload []byte) ([]byte, error) {
	return s.xor(payload)
}

func (s *CipherStage) xor(payload []byte) ([]byte, error) {
	if len(s.key) == 0 {
		return nil, ErrNoCipherKey
	}
	out := make([]byte, len(payload))
	for i, b := range payload {
		out[i] = b ^ s.key[i%len(s.key)]
	}
	return out, nil
}

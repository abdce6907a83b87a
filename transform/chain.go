// Package transform implements the Frame Transform Chain: an ordered
// list of byte-level stages (compression, encryption) applied below
// message identity, outside the Handler Pipeline.
package transform

// Direction distinguishes the two ends a Stage can run on.
type Direction int

const (
	// Decode runs inbound, before the Handler Pipeline sees the frame.
	Decode Direction = iota
	// Encode runs outbound, after the Handler Pipeline produces final bytes.
	Encode
)

// Stage is a named, byte-to-byte transform. Encode and Decode must be
// exact inverses of each other for a well-behaved stage.
type Stage interface {
	Name() string
	Encode(payload []byte) ([]byte, error)
	Decode(payload []byte) ([]byte, error)
}

// Chain runs an ordered sequence of Stages. Encode runs the stages
// forward (outbound, after the pipeline); Decode runs them in reverse
// (inbound, before the pipeline) so the last stage applied outbound is
// the first one undone inbound.
type Chain struct {
	stages []Stage
}

// New builds a Chain from stages in outbound-application order.
func New(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// Append adds a stage to the end of the chain's outbound order.
func (c *Chain) Append(stage Stage) {
	c.stages = append(c.stages, stage)
}

// Encode applies every stage in order, outbound.
func (c *Chain) Encode(payload []byte) ([]byte, error) {
	out := payload
	for _, s := range c.stages {
		var err error
		out, err = s.Encode(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Decode unwinds every stage in reverse order, inbound. A failure here
// means the frame is logged and dropped by the caller before it ever
// reaches the Handler Pipeline; Decode itself just reports the error.
func (c *Chain) Decode(payload []byte) ([]byte, error) {
	out := payload
	for i := len(c.stages) - 1; i >= 0; i-- {
		var err error
		out, err = c.stages[i].Decode(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

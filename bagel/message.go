package bagel

import "fmt"

// VertexID is the global id of a vertex.
type VertexID uint64

// PEID identifies a processing element (one partition owner).
type PEID uint32

// LocalID is a vertex's index inside its home PE.
type LocalID uint32

type MessageKind uint8

const (
	UpdateMsg MessageKind = iota
	BarrierMsg
)

func (k MessageKind) String() string {
	switch k {
	case UpdateMsg:
		return "update"
	case BarrierMsg:
		return "barrier"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Message is either a round-tagged update for a single vertex or the
// end-of-round marker of one source PE.
type Message struct {
	Kind     MessageKind
	Round    uint64
	SourcePE PEID

	// update fields
	Dest    VertexID
	Sender  VertexID
	Payload interface{}

	// barrier fields
	Count uint64 // updates the source sent this destination for Round
	Halt  bool   // the source emitted no update for Round at all
}

func NewUpdate(round uint64, src PEID, dest, sender VertexID, payload interface{}) Message {
	return Message{
		Kind:     UpdateMsg,
		Round:    round,
		SourcePE: src,
		Dest:     dest,
		Sender:   sender,
		Payload:  payload,
	}
}

func NewBarrier(round uint64, src PEID, count uint64, halt bool) Message {
	return Message{
		Kind:     BarrierMsg,
		Round:    round,
		SourcePE: src,
		Count:    count,
		Halt:     halt,
	}
}

func (m Message) IsBarrier() bool {
	return m.Kind == BarrierMsg
}

func (m Message) String() string {
	if m.IsBarrier() {
		return fmt.Sprintf(
			"barrier{round=%d src=%d count=%d halt=%t}",
			m.Round, m.SourcePE, m.Count, m.Halt,
		)
	}
	return fmt.Sprintf(
		"update{round=%d src=%d %d->%d payload=%v}",
		m.Round, m.SourcePE, m.Sender, m.Dest, m.Payload,
	)
}

// Seed is an initial round-0 update injected by the engine.
type Seed struct {
	Vertex  VertexID
	Payload interface{}
}

package bagel

import (
	"context"
	"fmt"
	"strings"
)

const (
	MESH_TOPOLOGY = "mesh"
	BUS_TOPOLOGY  = "bus"
)

// Inbox is the receive side of one destination PE: one FIFO lane per
// source PE and a doorbell rung after every delivery.
type Inbox struct {
	lanes []chan Message
	bell  chan struct{}
}

func newInbox(numSources, depth int) *Inbox {
	in := &Inbox{
		lanes: make([]chan Message, numSources),
		bell:  make(chan struct{}, 1),
	}
	for i := range in.lanes {
		in.lanes[i] = make(chan Message, depth)
	}
	return in
}

func (in *Inbox) deliver(ctx context.Context, src PEID, m Message) error {
	select {
	case in.lanes[src] <- m:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case in.bell <- struct{}{}:
	default:
	}
	return nil
}

func (in *Inbox) NumLanes() int {
	return len(in.lanes)
}

// Network routes messages from any PE to any PE, preserving FIFO order per
// (source, destination) pair. Send blocks while the path is full.
type Network interface {
	Send(ctx context.Context, src, dst PEID, m Message) error
	Inbox(dst PEID) *Inbox
	// Serve runs whatever the topology needs in the background and returns
	// once ctx is done.
	Serve(ctx context.Context) error
}

func NewNetwork(topology string, numPEs, depth int) (Network, error) {
	switch strings.ToLower(topology) {
	case "", MESH_TOPOLOGY:
		return newMesh(numPEs, depth), nil
	case BUS_TOPOLOGY:
		return newBus(numPEs, depth), nil
	}
	return nil, fmt.Errorf("%w: unknown topology %q", ErrBadConfig, topology)
}

// mesh gives every (source, destination) pair its own lane.
type mesh struct {
	inboxes []*Inbox
}

func newMesh(numPEs, depth int) *mesh {
	m := &mesh{inboxes: make([]*Inbox, numPEs)}
	for i := range m.inboxes {
		m.inboxes[i] = newInbox(numPEs, depth)
	}
	return m
}

func (m *mesh) Send(ctx context.Context, src, dst PEID, msg Message) error {
	return m.inboxes[dst].deliver(ctx, src, msg)
}

func (m *mesh) Inbox(dst PEID) *Inbox {
	return m.inboxes[dst]
}

func (m *mesh) Serve(ctx context.Context) error {
	return nil
}

type busFrame struct {
	src, dst PEID
	msg      Message
}

// bus pushes all traffic through one shared FIFO link. A dispatcher moves
// frames from the link into the destination lanes.
type bus struct {
	link    chan busFrame
	inboxes []*Inbox
}

func newBus(numPEs, depth int) *bus {
	b := &bus{
		link:    make(chan busFrame, depth),
		inboxes: make([]*Inbox, numPEs),
	}
	for i := range b.inboxes {
		b.inboxes[i] = newInbox(numPEs, depth)
	}
	return b
}

func (b *bus) Send(ctx context.Context, src, dst PEID, msg Message) error {
	select {
	case b.link <- busFrame{src: src, dst: dst, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *bus) Inbox(dst PEID) *Inbox {
	return b.inboxes[dst]
}

func (b *bus) Serve(ctx context.Context) error {
	for {
		select {
		case f := <-b.link:
			if err := b.inboxes[f.dst].deliver(ctx, f.src, f.msg); err != nil {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

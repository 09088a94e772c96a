/*

Package fchecker detects components that stopped making progress.

Every probe is a named function returning a counter that grows while its
component works. The checker samples each probe once per ProbeInterval,
the way a heartbeat is sent once per RTT: a sample equal to the previous
one counts as a lost heartbeat, and LostMsgThresh consecutive losses
report a failure for that probe.

*/

package fchecker

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

////////////////////////////////////////////////////// DATA

// Probe returns a monotone progress counter.
type Probe func() uint64

// Heartbeat is one sample of one probe.
type Heartbeat struct {
	EpochNonce uint64 // Identifies this fchecker instance/epoch.
	SeqNum     uint64 // Sample number within the epoch.
	Value      uint64
}

// Notification of a failure, signal back to the client using this
// library.
type FailureDetected struct {
	Target    string    // Name of the probe that stopped moving.
	LastSeq   uint64    // Sequence number of the last sample taken.
	Timestamp time.Time // The time when the failure was detected.
}

////////////////////////////////////////////////////// API

type StartStruct struct {
	EpochNonce    uint64
	ProbeInterval time.Duration
	LostMsgThresh uint8
	Probes        map[string]Probe
}

type Checker struct {
	arg      StartStruct
	notifyCh chan FailureDetected
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

type target struct {
	name     string
	probe    Probe
	last     Heartbeat
	lostMsgs uint8
	reported bool
}

// Start begins sampling every probe. Each failed target is reported once.
func Start(arg StartStruct) (*Checker, <-chan FailureDetected, error) {
	if arg.ProbeInterval <= 0 {
		return nil, nil, errors.New("fcheck: ProbeInterval must be positive")
	}
	if arg.LostMsgThresh == 0 {
		return nil, nil, errors.New("fcheck: LostMsgThresh must be positive")
	}
	if len(arg.Probes) == 0 {
		return nil, nil, errors.New("fcheck: nothing to monitor")
	}

	c := &Checker{
		arg:      arg,
		notifyCh: make(chan FailureDetected, len(arg.Probes)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	names := make([]string, 0, len(arg.Probes))
	for name := range arg.Probes {
		names = append(names, name)
	}
	sort.Strings(names)
	targets := make([]*target, len(names))
	for i, name := range names {
		targets[i] = &target{name: name, probe: arg.Probes[name]}
		targets[i].last = Heartbeat{EpochNonce: arg.EpochNonce, Value: targets[i].probe()}
	}

	go c.monitorRoutine(targets)
	return c, c.notifyCh, nil
}

func (c *Checker) monitorRoutine(targets []*target) {
	defer close(c.done)
	ticker := time.NewTicker(c.arg.ProbeInterval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			seq++
			for _, t := range targets {
				c.sample(t, seq, now)
			}
		}
	}
}

func (c *Checker) sample(t *target, seq uint64, now time.Time) {
	hb := Heartbeat{EpochNonce: c.arg.EpochNonce, SeqNum: seq, Value: t.probe()}
	if hb.Value != t.last.Value {
		t.lostMsgs = 0
		t.last = hb
		return
	}
	t.lostMsgs++
	if t.lostMsgs < c.arg.LostMsgThresh || t.reported {
		return
	}

	t.reported = true
	log.Warn().
		Str("target", t.name).
		Uint64("seq", seq).
		Uint8("lost", t.lostMsgs).
		Msg("fcheck: no progress")
	// buffered for one report per target
	c.notifyCh <- FailureDetected{Target: t.name, LastSeq: seq, Timestamp: now}
}

// Stop tells the library to stop monitoring. Safe to call more than once.
func (c *Checker) Stop() {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
	})
}

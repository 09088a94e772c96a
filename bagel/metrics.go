package bagel

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	messagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bagel_messages_sent_total",
		Help: "Updates emitted by a PE's scatter stage",
	}, []string{"pe"})
	messagesApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bagel_messages_applied_total",
		Help: "Updates committed by a PE's apply stage",
	}, []string{"pe"})
	collisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bagel_collisions_total",
		Help: "Reads deferred because a write to the same vertex was in flight",
	}, []string{"pe"})
	stallCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bagel_stall_cycles_total",
		Help: "Apply cycles spent waiting on a conflicting write",
	}, []string{"pe"})
	staleMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bagel_stale_messages_total",
		Help: "Messages tagged with a round older than the accepting round",
	}, []string{"pe"})
	kernelErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bagel_kernel_errors_total",
		Help: "Errors returned by the vertex kernel",
	}, []string{"pe"})
	currentRound = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bagel_round",
		Help: "Round a PE's apply stage is working on",
	}, []string{"pe"})
	enginesRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bagel_engines_running",
		Help: "Engines currently inside Run",
	})
)

func init() {
	prometheus.MustRegister(
		messagesSent, messagesApplied, collisionsTotal, stallCycles,
		staleMessages, kernelErrors, currentRound, enginesRunning,
	)
}

// PEStats is a snapshot of one PE's counters.
type PEStats struct {
	PE           PEID
	Vertices     int
	Edges        int
	Round        uint64
	Cycles       uint64
	Granted      uint64 // messages the arbiter took off the lanes
	Outstanding  uint64 // declared updates of the accepting round not yet granted
	Applied      uint64
	Sent         uint64
	Scanned      uint64 // CSR entries walked by scatter
	Barriers     uint64
	Collisions   uint64
	StallCycles  uint64
	Stale        uint64
	KernelErrors uint64
	Inactive     bool
}

type peCounters struct {
	label string

	round        atomic.Uint64
	cycles       atomic.Uint64
	granted      atomic.Uint64
	applied      atomic.Uint64
	sent         atomic.Uint64
	scanned      atomic.Uint64
	outstanding  atomic.Uint64
	barriers     atomic.Uint64
	collisions   atomic.Uint64
	stallCycles  atomic.Uint64
	stale        atomic.Uint64
	kernelErrors atomic.Uint64
	inactive     atomic.Bool

	// beats moves around kernel calls and per swept vertex; busy is
	// non-zero while a checkpoint is being written.
	beats atomic.Uint64
	busy  atomic.Int32
}

func newPECounters(pe PEID) *peCounters {
	return &peCounters{label: strconv.FormatUint(uint64(pe), 10)}
}

func (c *peCounters) addSent(n uint64) {
	c.sent.Add(n)
	messagesSent.WithLabelValues(c.label).Add(float64(n))
}

func (c *peCounters) addApplied() {
	c.applied.Add(1)
	messagesApplied.WithLabelValues(c.label).Inc()
}

func (c *peCounters) addCollision() {
	c.collisions.Add(1)
	collisionsTotal.WithLabelValues(c.label).Inc()
}

func (c *peCounters) addStall() {
	c.stallCycles.Add(1)
	stallCycles.WithLabelValues(c.label).Inc()
}

func (c *peCounters) addStale() {
	c.stale.Add(1)
	staleMessages.WithLabelValues(c.label).Inc()
}

func (c *peCounters) addKernelError() {
	c.kernelErrors.Add(1)
	kernelErrors.WithLabelValues(c.label).Inc()
}

func (c *peCounters) setRound(r uint64) {
	c.round.Store(r)
	currentRound.WithLabelValues(c.label).Set(float64(r))
}

func (c *peCounters) beat() {
	c.beats.Add(1)
}

// working marks a long call that makes progress without touching any
// counter. The returned func ends it.
func (c *peCounters) working() func() {
	c.busy.Add(1)
	return func() { c.busy.Add(-1) }
}

// progress moves whenever the PE does anything at all.
func (c *peCounters) progress() uint64 {
	return c.cycles.Load() + c.granted.Load() + c.sent.Load() + c.scanned.Load() + c.beats.Load()
}

func (c *peCounters) snapshot(pe PEID) PEStats {
	return PEStats{
		PE:           pe,
		Round:        c.round.Load(),
		Cycles:       c.cycles.Load(),
		Granted:      c.granted.Load(),
		Outstanding:  c.outstanding.Load(),
		Applied:      c.applied.Load(),
		Sent:         c.sent.Load(),
		Scanned:      c.scanned.Load(),
		Barriers:     c.barriers.Load(),
		Collisions:   c.collisions.Load(),
		StallCycles:  c.stallCycles.Load(),
		Stale:        c.stale.Load(),
		KernelErrors: c.kernelErrors.Load(),
		Inactive:     c.inactive.Load(),
	}
}

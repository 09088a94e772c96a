package bagel

import (
	"fmt"
	"time"
)

const (
	DEFAULT_LANE_DEPTH       = 64
	DEFAULT_QUEUE_DEPTH      = 64
	DEFAULT_PIPELINE_LATENCY = 4
	DEFAULT_STALL_PROBE_MS   = 200
	DEFAULT_STALL_THRESHOLD  = 25
)

// Config is the per-run engine configuration. It is read from the
// "Engine" section of the coord config or from a standalone JSON file.
type Config struct {
	NumPEs          int
	VerticesPerPE   int // 0 = unlimited
	EdgesPerPE      int // 0 = unlimited
	LaneDepth       int // per (source, destination) lane
	QueueDepth      int // arbiter -> apply and apply -> scatter
	PipelineLatency int // cycles between issuing a read and committing its write
	Topology        string
	Partitioner     string
	CheckpointEvery uint64 // rounds; 0 disables checkpoints

	StallProbeMillis int   // negative disables the stall monitor
	StallThreshold   uint8 // probes without progress before reporting a deadlock
}

func DefaultConfig() Config {
	return Config{
		NumPEs:           1,
		LaneDepth:        DEFAULT_LANE_DEPTH,
		QueueDepth:       DEFAULT_QUEUE_DEPTH,
		PipelineLatency:  DEFAULT_PIPELINE_LATENCY,
		Topology:         MESH_TOPOLOGY,
		Partitioner:      MODULO_PARTITION,
		StallProbeMillis: DEFAULT_STALL_PROBE_MS,
		StallThreshold:   DEFAULT_STALL_THRESHOLD,
	}
}

// WithDefaults fills every zero field with its default.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.NumPEs == 0 {
		c.NumPEs = d.NumPEs
	}
	if c.LaneDepth == 0 {
		c.LaneDepth = d.LaneDepth
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = d.QueueDepth
	}
	if c.PipelineLatency == 0 {
		c.PipelineLatency = d.PipelineLatency
	}
	if c.Topology == "" {
		c.Topology = d.Topology
	}
	if c.Partitioner == "" {
		c.Partitioner = d.Partitioner
	}
	if c.StallProbeMillis == 0 {
		c.StallProbeMillis = d.StallProbeMillis
	}
	if c.StallThreshold == 0 {
		c.StallThreshold = d.StallThreshold
	}
	return c
}

func (c Config) Validate() error {
	switch {
	case c.NumPEs < 1:
		return fmt.Errorf("%w: NumPEs %d", ErrBadConfig, c.NumPEs)
	case c.LaneDepth < 1:
		return fmt.Errorf("%w: LaneDepth %d", ErrBadConfig, c.LaneDepth)
	case c.QueueDepth < 1:
		return fmt.Errorf("%w: QueueDepth %d", ErrBadConfig, c.QueueDepth)
	case c.PipelineLatency < 1:
		return fmt.Errorf("%w: PipelineLatency %d", ErrBadConfig, c.PipelineLatency)
	case c.VerticesPerPE < 0 || c.EdgesPerPE < 0:
		return fmt.Errorf("%w: negative capacity", ErrBadConfig)
	}
	return nil
}

func (c Config) stallProbeInterval() time.Duration {
	return time.Duration(c.StallProbeMillis) * time.Millisecond
}

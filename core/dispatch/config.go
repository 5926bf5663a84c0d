package dispatch

import "fmt"

// Config defines dispatch-related settings.
type Config struct {
	// AckDeadlineSeconds is how long an order may stay ASSIGNED without a
	// driver acknowledgment before the sweeper reclaims it.
	AckDeadlineSeconds int `json:"ack_deadline_seconds"`
	// SweepIntervalSeconds is the sweeper cadence. Must be shorter than
	// the ack deadline to bound staleness.
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
	// IngestIntervalSeconds is the ingest/batcher cadence.
	IngestIntervalSeconds int `json:"ingest_interval_seconds"`
	// ClusterBiasMeters bounds the intra-cluster spread during
	// geo-clustering.
	ClusterBiasMeters float64 `json:"cluster_bias_meters"`
	// MaxBatchSize caps the number of orders pulled into one solver batch.
	MaxBatchSize int `json:"max_batch_size"`
	// PollAttempts bounds the solver poll loop.
	PollAttempts int `json:"poll_attempts"`
	// PollIntervalMS is the delay between solver polls.
	PollIntervalMS int `json:"poll_interval_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.AckDeadlineSeconds <= 0 {
		c.AckDeadlineSeconds = 300
	}
	if c.SweepIntervalSeconds <= 0 {
		c.SweepIntervalSeconds = 60
	}
	if c.IngestIntervalSeconds <= 0 {
		c.IngestIntervalSeconds = 60
	}
	if c.ClusterBiasMeters <= 0 {
		c.ClusterBiasMeters = 1500
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 50
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 15
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = 2000
	}
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.SweepIntervalSeconds >= c.AckDeadlineSeconds {
		return fmt.Errorf("sweep_interval_seconds (%d) must be smaller than ack_deadline_seconds (%d)",
			c.SweepIntervalSeconds, c.AckDeadlineSeconds)
	}
	return nil
}

package emmer

import (
	"fmt"
	"time"
)

// Config holds the tunables a Server is constructed with. There is no
// external configuration library in play here — like the rest of the
// pack's own services, Config is a plain struct the caller populates
// (from flags, env, or a hand-rolled file) before calling New.
type Config struct {
	// Host and Port are the UDP address the server listens on. Production
	// deployments bind 0.0.0.0:69; tests and local runs use an unprivileged
	// port on loopback instead.
	Host string
	Port int

	// ResendTimeout is how long a conversation may go without interaction
	// before the maintainer resends its last reply.
	ResendTimeout time.Duration

	// RetriesBeforeGiveup is how many resends the maintainer will attempt
	// before declaring a conversation timed out and reaping it.
	RetriesBeforeGiveup uint32

	// MaintainerTick is how often the maintainer sweeps the registry.
	MaintainerTick time.Duration

	// Workers sizes the reactor's datagram-processing pool. Zero uses
	// defaultWorkers.
	Workers int
}

// DefaultConfig mirrors the original service's config.py defaults.
func DefaultConfig() Config {
	return Config{
		Host:                "127.0.0.1",
		Port:                3942,
		ResendTimeout:       5 * time.Second,
		RetriesBeforeGiveup: 6,
		MaintainerTick:      1 * time.Second,
		Workers:             defaultWorkers,
	}
}

// Validate reports the first configuration error found, if any.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("emmer: Host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("emmer: Port %d out of range", c.Port)
	}
	if c.ResendTimeout <= 0 {
		return fmt.Errorf("emmer: ResendTimeout must be positive")
	}
	if c.MaintainerTick <= 0 {
		return fmt.Errorf("emmer: MaintainerTick must be positive")
	}
	return nil
}

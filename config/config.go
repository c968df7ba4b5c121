// Package config loads the §6 configurable option table from YAML using
// gopkg.in/yaml.v3, the way the teacher's sibling repo in the retrieval
// pack (tinyrange-cc) loads its runtime configuration, and documents the
// §6 defaults for each option.
package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of per-connection/per-multiplexer options from
// §6's "Configurable options" table.
type Config struct {
	// MSS is the maximum packet size in bytes, default 1500.
	MSS int `yaml:"mss"`
	// SndSyn/RcvSyn select blocking (true) or non-blocking (false) send/recv.
	SndSyn bool `yaml:"snd_syn"`
	RcvSyn bool `yaml:"rcv_syn"`
	// FC is the max flight-flag size: the peer's advertised window cap.
	FC int `yaml:"fc"`
	// SndBuf/RcvBuf are UDT-layer buffer caps, in packets.
	SndBuf int `yaml:"snd_buf"`
	RcvBuf int `yaml:"rcv_buf"`
	// UDPSndBuf/UDPRcvBuf size the underlying datagram socket's buffers, in bytes.
	UDPSndBuf int `yaml:"udp_snd_buf"`
	UDPRcvBuf int `yaml:"udp_rcv_buf"`
	// Linger is the drain-on-close timeout.
	Linger time.Duration `yaml:"linger"`
	// MaxMsg is the max datagram-mode message size, in bytes.
	MaxMsg int `yaml:"max_msg"`
	// MsgTTL is the datagram message time-to-live.
	MsgTTL time.Duration `yaml:"msg_ttl"`
	// Rendezvous selects symmetric connect mode.
	Rendezvous bool `yaml:"rendezvous"`
	// SndTimeo/RcvTimeo are blocking-call timeouts; 0 means infinite (the
	// legacy -1 sentinel is expressed as the Go zero value here).
	SndTimeo time.Duration `yaml:"snd_timeo"`
	RcvTimeo time.Duration `yaml:"rcv_timeo"`
	// ReuseAddr shares the underlying UDP endpoint across connections.
	ReuseAddr bool `yaml:"reuse_addr"`
}

// Default returns the §6-documented defaults.
func Default() Config {
	return Config{
		MSS:       1500,
		SndSyn:    true,
		RcvSyn:    true,
		FC:        25600,
		SndBuf:    8192,
		RcvBuf:    8192,
		UDPSndBuf: 65536,
		UDPRcvBuf: 65536,
		Linger:    180 * time.Second,
		MaxMsg:    1 << 20,
		MsgTTL:    -1, // negative means "no expiry" at the message-buffer layer
		SndTimeo:  0,
		RcvTimeo:  0,
	}
}

// Load parses a YAML document into a Config seeded with Default() values,
// so an incomplete document only overrides the fields it mentions.
func Load(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal serializes cfg back to YAML, e.g. for a perfmon/debug dump.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

package anonymity

import "time"

// Config describes the local proxy process and its control port.
type Config struct {
	SocksAddr       string        `yaml:"socks_addr"`
	ControlAddr     string        `yaml:"control_addr"`
	ControlPassword string        `yaml:"control_password"`
	Binary          string        `yaml:"binary"`
	Args            []string      `yaml:"args"`
	ProcessNames    []string      `yaml:"process_names"`
	StartTimeout    time.Duration `yaml:"start_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	// BootstrapTimeout bounds the wait for 100% bootstrap progress.
	BootstrapTimeout time.Duration `yaml:"bootstrap_timeout"`
	// RotationInterval is the minimum spacing between identity requests; the
	// proxy rate-limits NEWNYM to one per ten seconds.
	RotationInterval time.Duration `yaml:"rotation_interval"`
	JoinTimeout      time.Duration `yaml:"join_timeout"`
}

func DefaultConfig() Config {
	return Config{
		SocksAddr:        "127.0.0.1:9050",
		ControlAddr:      "127.0.0.1:9051",
		ControlPassword:  "tor-passwd",
		Binary:           "tor",
		ProcessNames:     []string{"tor", "tor.exe"},
		StartTimeout:     10 * time.Second,
		PollInterval:     time.Second,
		BootstrapTimeout: 2 * time.Minute,
		RotationInterval: 10 * time.Second,
		JoinTimeout:      time.Second,
	}
}

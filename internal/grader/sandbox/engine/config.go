package engine

// Config controls how the engine isolates and observes executions.
type Config struct {
	// EnableCgroup turns on cgroup v2 memory enforcement and accounting.
	// When off, memory is still accounted from rusage but not enforced.
	EnableCgroup bool `yaml:"enableCgroup"`

	// CgroupRoot is the parent cgroup directory runs are created under,
	// e.g. /sys/fs/cgroup/gradex.
	CgroupRoot string `yaml:"cgroupRoot"`

	// PidsMax bounds the process count per run. 0 keeps the default of 64.
	PidsMax int64 `yaml:"pidsMax"`

	// StdoutStderrMaxBytes caps how much of each stream is read back.
	StdoutStderrMaxBytes int64 `yaml:"stdoutStderrMaxBytes"`
}

const (
	defaultPidsMax              int64 = 64
	defaultStdoutStderrMaxBytes int64 = 64 * 1024
)

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.PidsMax <= 0 {
		c.PidsMax = defaultPidsMax
	}
	if c.StdoutStderrMaxBytes <= 0 {
		c.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
}

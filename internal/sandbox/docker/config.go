package docker

import (
	"time"
)

// Config holds the configuration for Docker sessions.
type Config struct {
	// DefaultImage is used when the requested template is empty.
	DefaultImage string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// NetworkMode is the container network. The script clones and pushes to
	// GitHub, so the default is "bridge", not "none".
	NetworkMode string
	// User runs the script inside the container.
	User string
	// PullTimeout bounds the image pull done when a session is created.
	PullTimeout time.Duration
}

// DefaultConfig provides sensible defaults for a bash + git sandbox.
func DefaultConfig() Config {
	return Config{
		DefaultImage: "node:22-bookworm",
		// 1 GB memory limit: cloning and building a repository needs room
		MemoryLimit: 1024 * 1024 * 1024,
		CPULimit:    1,
		NetworkMode: "bridge",
		User:        "",
		PullTimeout: 5 * time.Minute,
	}
}

// Package config loads persisted user settings and merges them into
// resolved boot profiles. The merge policy is one-way: an explicit user
// value always wins over a resolved default.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sigreer/bootgod/internal/bootspec"
)

type Config struct {
	VM      VMConfig      `yaml:"vm"`
	Imaging ImagingConfig `yaml:"imaging"`
	History HistoryConfig `yaml:"history"`
}

// VMConfig carries the user's standing overrides for resolved boot
// profiles plus supervisor tuning.
type VMConfig struct {
	Binary       string            `yaml:"binary,omitempty"`
	MemoryMB     int               `yaml:"memory_mb,omitempty"`
	CPUs         int               `yaml:"cpus,omitempty"`
	Firmware     string            `yaml:"firmware,omitempty"`  // bios or uefi
	Interface    string            `yaml:"interface,omitempty"` // ide, virtio, scsi, nvme
	GraceSeconds int               `yaml:"grace_seconds,omitempty"`
	Extra        map[string]string `yaml:"extra,omitempty"`
}

type ImagingConfig struct {
	ChunkSizeMB int `yaml:"chunk_size_mb,omitempty"`
}

type HistoryConfig struct {
	Path    string `yaml:"path,omitempty"`
	Disable bool   `yaml:"disable,omitempty"`
}

var defaultConfig = Config{
	VM: VMConfig{
		GraceSeconds: 5,
	},
	Imaging: ImagingConfig{
		ChunkSizeMB: 4,
	},
	History: HistoryConfig{
		Path: "/var/lib/bootgod/history.db",
	},
}

// Load reads the config from path, or from the default locations when
// path is empty. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		candidates := []string{
			"/etc/bootgod/config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/bootgod/config.yaml"),
			"config.yaml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	cfg := defaultConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			cfg = Config{}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Fill in anything the file left unset
	if cfg.VM.GraceSeconds == 0 {
		cfg.VM.GraceSeconds = defaultConfig.VM.GraceSeconds
	}
	if cfg.Imaging.ChunkSizeMB == 0 {
		cfg.Imaging.ChunkSizeMB = defaultConfig.Imaging.ChunkSizeMB
	}
	if cfg.History.Path == "" {
		cfg.History.Path = defaultConfig.History.Path
	}

	return &cfg, nil
}

// ApplyOverrides merges the user's standing VM overrides into a
// resolved profile. The profile is cloned; the input is never mutated.
func (c *Config) ApplyOverrides(profile *bootspec.BootProfile) *bootspec.BootProfile {
	out := profile.Clone()

	if c.VM.MemoryMB > 0 {
		out.MemoryMB = c.VM.MemoryMB
	}
	if c.VM.CPUs > 0 {
		out.CPUs = c.VM.CPUs
	}
	if c.VM.Firmware != "" {
		out.Firmware = bootspec.Firmware(c.VM.Firmware)
	}
	if c.VM.Interface != "" {
		out.Interface = bootspec.DiskInterface(c.VM.Interface)
	}
	for k, v := range c.VM.Extra {
		if out.Extra == nil {
			out.Extra = make(map[string]string)
		}
		out.Extra[k] = v
	}

	return out
}

// Grace returns the configured cancel grace period.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.VM.GraceSeconds) * time.Second
}

// ChunkSize returns the configured imaging chunk size in bytes.
func (c *Config) ChunkSize() int {
	return c.Imaging.ChunkSizeMB * 1024 * 1024
}

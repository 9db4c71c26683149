// shareimport - An attachment import pipeline for end-to-end encrypted messengers.
// Copyright (C) 2026 shareimport contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"os"
	"time"

	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

type ImportConfig struct {
	// WorkDir is where owned attachment copies live. Empty means a fresh
	// process-private temp directory per importer.
	WorkDir        string `yaml:"work_dir"`
	MaxAttachments int    `yaml:"max_attachments"`
}

type TranscodeConfig struct {
	Enabled bool `yaml:"enabled"`
	// OutputArgs are extra ffmpeg output arguments for the MPEG-4 target.
	OutputArgs []string `yaml:"output_args"`
	// PollIntervalMS is the export progress sampling interval.
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

func (tc *TranscodeConfig) PollInterval() time.Duration {
	return time.Duration(tc.PollIntervalMS) * time.Millisecond
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type Config struct {
	Import    ImportConfig      `yaml:"import"`
	Transcode TranscodeConfig   `yaml:"transcode"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Logging   zeroconfig.Config `yaml:"logging"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Import.MaxAttachments < 0 {
		return fmt.Errorf("import.max_attachments must not be negative")
	}
	if cfg.Transcode.PollIntervalMS < 0 {
		return fmt.Errorf("transcode.poll_interval_ms must not be negative")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	return nil
}

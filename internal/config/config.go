// go-toypad
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-toypad.
//
// go-toypad is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-toypad is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-toypad; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package config loads the optional YAML settings file of the toypad
// command. Command-line flags override whatever it sets.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names
const (
	TransportUART = "uart"
	TransportI2C  = "i2c"
	TransportSPI  = "spi"
	TransportPCSC = "pcsc"
)

// DefaultTimeout is how long the command waits for a tag.
const DefaultTimeout = 30 * time.Second

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the command settings.
type Config struct {
	// Transport is uart, i2c, spi or pcsc.
	Transport string `yaml:"transport"`
	// Device is the serial port, I2C bus or SPI port. Empty picks the
	// first serial port found.
	Device string `yaml:"device"`
	// Reader selects a PC/SC reader by index or name substring.
	Reader string `yaml:"reader"`
	// Catalog is a taglist.json or YAML list; empty uses the built-in
	// sample.
	Catalog             string        `yaml:"catalog"`
	Timeout             time.Duration `yaml:"timeout"`
	Debug               bool          `yaml:"debug"`
	SessionLog          bool          `yaml:"session_log"`
	ProvisionProtection bool          `yaml:"provision_protection"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Transport: TransportUART,
		Timeout:   DefaultTimeout,
	}
}

// Parse reads YAML over the defaults. Unknown keys are errors.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load parses the file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the -config flag
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings are usable together.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportUART, TransportI2C, TransportSPI, TransportPCSC:
	default:
		return fmt.Errorf("%w: unknown transport %q (uart, i2c, spi or pcsc)", ErrInvalidConfig, c.Transport)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidConfig, c.Timeout)
	}
	if (c.Transport == TransportI2C || c.Transport == TransportSPI) && c.Device == "" {
		return fmt.Errorf("%w: %s transport needs a device", ErrInvalidConfig, c.Transport)
	}
	if c.Transport != TransportPCSC && c.Reader != "" {
		return fmt.Errorf("%w: reader only applies to the pcsc transport", ErrInvalidConfig)
	}
	return nil
}

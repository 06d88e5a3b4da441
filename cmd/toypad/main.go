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

// Command toypad reads and rewrites toy pad NTAG213 tags on a PN532 or
// PC/SC reader, and prints NFC Tools command lines for a known UID.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"syscall"

	toypad "github.com/ZaparooProject/go-toypad"
	"github.com/ZaparooProject/go-toypad/catalog"
	"github.com/ZaparooProject/go-toypad/internal/config"
	"github.com/ZaparooProject/go-toypad/pn532"
	"github.com/ZaparooProject/go-toypad/polling"
	"github.com/ZaparooProject/go-toypad/transport/i2c"
	"github.com/ZaparooProject/go-toypad/transport/pcsc"
	"github.com/ZaparooProject/go-toypad/transport/spi"
	"github.com/ZaparooProject/go-toypad/transport/uart"
)

type options struct {
	cfg        config.Config
	configPath string
	write      string
	uid        string
	id         uint
	listIDs    bool
	listNames  bool
	listPorts  bool
	yes        bool
}

// parseFlags reads args over the config file named by -config. Flags that
// were set win over the file.
func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("toypad", flag.ContinueOnError)

	opts := &options{}
	var flagCfg config.Config
	fs.StringVar(&opts.configPath, "config", "", "YAML settings file")
	fs.StringVar(&flagCfg.Transport, "transport", config.TransportUART, "Reader transport: uart, i2c, spi or pcsc")
	fs.StringVar(&flagCfg.Device, "device", "", "Serial port, I2C bus or SPI port (first serial port if empty)")
	fs.StringVar(&flagCfg.Reader, "reader", "", "PC/SC reader index or name")
	fs.StringVar(&flagCfg.Catalog, "catalog", "", "taglist.json or YAML catalog (built-in sample if empty)")
	fs.DurationVar(&flagCfg.Timeout, "timeout", config.DefaultTimeout, "How long to wait for a tag when writing")
	fs.BoolVar(&flagCfg.Debug, "debug", false, "Enable debug output")
	fs.BoolVar(&flagCfg.SessionLog, "log", false, "Write a session log file in the current directory")
	fs.BoolVar(&flagCfg.ProvisionProtection, "protect", false, "Also enable read protection when writing a blank tag")
	fs.StringVar(&opts.write, "write", "", "ID or name to write to the next tag (exits after write)")
	fs.BoolVar(&opts.yes, "yes", false, "Write without asking for confirmation")
	fs.BoolVar(&opts.listIDs, "list-ids", false, "List all known IDs")
	fs.BoolVar(&opts.listNames, "list-names", false, "List all known names")
	fs.BoolVar(&opts.listPorts, "list-ports", false, "List serial ports, likely PN532 boards first")
	fs.StringVar(&opts.uid, "uid", "", "Offline mode: print password, key and NFC Tools commands for this UID")
	fs.UintVar(&opts.id, "id", 0, "Offline mode: only print the command for this ID")

	if err := fs.Parse(args); err != nil {
		return nil, err //nolint:wrapcheck // flag already printed the problem
	}

	opts.cfg = config.Default()
	if opts.configPath != "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		opts.cfg = cfg
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			opts.cfg.Transport = flagCfg.Transport
		case "device":
			opts.cfg.Device = flagCfg.Device
		case "reader":
			opts.cfg.Reader = flagCfg.Reader
		case "catalog":
			opts.cfg.Catalog = flagCfg.Catalog
		case "timeout":
			opts.cfg.Timeout = flagCfg.Timeout
		case "debug":
			opts.cfg.Debug = flagCfg.Debug
		case "log":
			opts.cfg.SessionLog = flagCfg.SessionLog
		case "protect":
			opts.cfg.ProvisionProtection = flagCfg.ProvisionProtection
		}
	})

	if err := opts.cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.id != 0 && opts.uid == "" {
		return nil, errors.New("-id needs -uid")
	}
	if opts.id > math.MaxUint32 {
		return nil, fmt.Errorf("-id %d does not fit in 32 bits", opts.id)
	}
	return opts, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}

// openConnector opens the reader the config names.
func openConnector(ctx context.Context, cfg config.Config) (toypad.Connector, error) {
	var transport pn532.Transport
	switch cfg.Transport {
	case config.TransportPCSC:
		c, err := pcsc.New(cfg.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to open PC/SC reader: %w", err)
		}
		toypad.Debugf("using PC/SC reader %s", c.Reader())
		return c, nil
	case config.TransportI2C:
		t, err := i2c.New(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		transport = t
	case config.TransportSPI:
		t, err := spi.New(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		transport = t
	default:
		port := cfg.Device
		if port == "" {
			p, err := uart.DefaultPort()
			if err != nil {
				return nil, err
			}
			port = p
		}
		t, err := uart.New(port)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		transport = t
	}

	device, err := pn532.New(transport)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	if err := device.Init(ctx); err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("failed to initialize PN532: %w", err)
	}
	if fw, err := device.FirmwareVersion(ctx); err == nil {
		toypad.Debugf("%s", fw)
	}
	return device, nil
}

func run(ctx context.Context, opts *options, stdin io.Reader, stdout io.Writer) error {
	if opts.listPorts {
		return listPorts(stdout)
	}

	cat, err := loadCatalog(opts.cfg.Catalog)
	if err != nil {
		return err
	}

	switch {
	case opts.listIDs:
		listIDs(stdout, cat)
		return nil
	case opts.listNames:
		listNames(stdout, cat)
		return nil
	case opts.uid != "":
		return runOffline(stdout, opts.uid, uint32(opts.id))
	}

	var target *catalog.Entry
	if opts.write != "" {
		e, err := resolveTarget(cat, opts.write)
		if err != nil {
			return err
		}
		target = &e
	}

	connector, err := openConnector(ctx, opts.cfg)
	if err != nil {
		return err
	}

	var sessionOpts []toypad.SessionOption
	if opts.cfg.ProvisionProtection {
		sessionOpts = append(sessionOpts, toypad.WithProvisionProtection())
	}
	reader, err := toypad.NewReader(connector, sessionOpts...)
	if err != nil {
		_ = connector.Close()
		return err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close reader: %v\n", err)
		}
	}()

	if target != nil {
		w := &writer{
			reader:  reader,
			catalog: cat,
			target:  *target,
			confirm: newConfirmer(stdin, stdout, opts.yes),
			out:     stdout,
			timeout: opts.cfg.Timeout,
		}
		return w.run(ctx)
	}
	watcher := newWatcher(reader, cat, stdout)
	if device, ok := connector.(*pn532.Device); ok {
		watcher.SetRecoverer(polling.NewDeviceRecoverer(device, polling.DefaultSleepRecoveryConfig()))
	}
	_, _ = fmt.Fprintf(stdout, "Waiting for tags on %s reader. Press Ctrl+C to stop...\n", opts.cfg.Transport)
	return watcher.Run(ctx)
}

// newWatcher returns a watcher printing every tag placed on the reader.
func newWatcher(reader *toypad.Reader, cat *catalog.Catalog, out io.Writer) *polling.Watcher {
	w := polling.NewWatcher(reader, polling.DefaultConfig())
	w.OnTag = func(_ *toypad.Session, result *toypad.ReadResult) error {
		printResult(out, cat, result)
		return nil
	}
	w.OnRemoved = func(toypad.UID) {
		_, _ = fmt.Fprintln(out, "Tag removed - ready for next tag...")
	}
	w.OnError = func(err error) {
		_, _ = fmt.Fprintf(out, "Error: %v\n", err)
	}
	return w
}

func listPorts(out io.Writer) error {
	ports, err := uart.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(out, "No serial ports found")
		return nil
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(out, p)
	}
	return nil
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if opts.cfg.Debug {
		toypad.SetDebugEnabled(true)
	}
	if opts.cfg.SessionLog {
		path, err := toypad.InitSessionLog()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to create session log: %v\n", err)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "Session log: %s\n", path)
			defer func() { _ = toypad.CloseSessionLog() }()
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

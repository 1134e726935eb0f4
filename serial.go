// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"fmt"
	"net"
	"strings"
	"time"

	"go.bug.st/serial"
)

// toSerialStopBits converts StopBits to the go.bug.st/serial type.
func toSerialStopBits(sb StopBits) serial.StopBits {
	switch sb {
	case TwoStopBits:
		return serial.TwoStopBits
	case OnePointFiveStopBits:
		return serial.OnePointFiveStopBits
	default:
		return serial.OneStopBit
	}
}

// toSerialParity converts Parity to the go.bug.st/serial type.
func toSerialParity(p Parity) serial.Parity {
	switch p {
	case NoParity:
		return serial.NoParity
	case OddParity:
		return serial.OddParity
	default:
		return serial.EvenParity
	}
}

// openSerialPort opens cfg.Device with go.bug.st/serial, except when Device
// has the "socket://host:port" test-mode prefix, in which case it dials a
// plain TCP connection instead, so RTU/ASCII framing can be exercised in
// tests against a net.Listener without a real TTY.
func openSerialPort(cfg SerialConfig) (interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
}, error) {
	if addr, ok := strings.CutPrefix(cfg.Device, "socket://"); ok {
		return net.Dial("tcp", addr)
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: toSerialStopBits(cfg.StopBits),
		Parity:   toSerialParity(cfg.Parity),
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		if err := port.SetReadTimeout(cfg.Timeout); err != nil {
			port.Close()
			return nil, err
		}
	}
	return port, nil
}

// serveSerial runs one serial connection to completion using framerFactory,
// then, if cfg.AutoReconnect is set, waits ReconnectDelay and reopens the
// port, repeating until Stop closes the server. A real serial device can be
// unplugged and reconnected, unlike a PTY pair which never disappears on
// its own.
func (s *Server) serveSerial(cfg SerialConfig, framerFactory FramerFactory) error {
	s.SetLogger(cfg.Logger)
	for {
		port, err := openSerialPort(cfg)
		if err != nil {
			if !cfg.AutoReconnect {
				return fmt.Errorf("modbus: open serial port %s: %w", cfg.Device, err)
			}
			s.logger.Printf("serial port %s unavailable: %v", cfg.Device, err)
			if !s.sleepOrClosed(cfg.ReconnectDelay) {
				return nil
			}
			continue
		}
		s.markStarted()
		s.logger.Printf("serial server on %s", cfg.Device)

		s.wg.Add(1)
		done := make(chan struct{})
		go func() {
			defer s.wg.Done()
			defer close(done)
			defer port.Close()
			s.serveConnection(port, framerFactory(s.registry), nil)
		}()
		<-done

		if s.isClosed() || !cfg.AutoReconnect {
			return nil
		}
		if !s.sleepOrClosed(cfg.ReconnectDelay) {
			return nil
		}
	}
}

// ServeRTU runs an RTU-framed server on cfg's serial device.
func (s *Server) ServeRTU(cfg SerialConfig) error {
	return s.serveSerial(cfg, newRTUFramer)
}

// ServeASCII runs an ASCII-framed server on cfg's serial device.
func (s *Server) ServeASCII(cfg SerialConfig) error {
	return s.serveSerial(cfg, newASCIIFramer)
}

// sleepOrClosed waits for d, returning false early (and without the full
// wait) if Stop is called first.
func (s *Server) sleepOrClosed(d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-time.After(d):
		return true
	case <-s.closed:
		return false
	}
}

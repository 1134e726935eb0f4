// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"log"
	"time"
)

// StopBits mirrors the modbus serial line convention, independent of the
// go.bug.st/serial package's own type so callers don't need to import it.
type StopBits int

const (
	OneStopBit StopBits = iota
	OnePointFiveStopBits
	TwoStopBits
)

// Parity mirrors the modbus serial line convention. NoParity is the zero
// value, matching the "N" default of a real Modbus serial line.
type Parity int

const (
	NoParity Parity = iota
	EvenParity
	OddParity
)

// TCPConfig configures a SOCKET-framed server listening on a TCP address.
type TCPConfig struct {
	Address string // e.g. ":502" or "localhost:5020"
	Logger  *log.Logger
}

// UDPConfig configures a SOCKET-framed server listening on a UDP address.
type UDPConfig struct {
	Address string
	Logger  *log.Logger
}

// UnixConfig configures a SOCKET-framed server listening on a Unix domain
// socket.
type UnixConfig struct {
	Path   string
	Logger *log.Logger
}

// TLSConfig configures a TLS-framed server implementing the Modbus/TCP
// Security Profile. CertFile/KeyFile identify the server's own certificate;
// ClientCAFile, when set, is used to require and verify a client
// certificate (mutual TLS), mirroring pymodbus's sslctx_provider.
type TLSConfig struct {
	Address      string
	CertFile     string
	KeyFile      string
	ClientCAFile string
	Logger       *log.Logger
}

// SerialConfig configures an RTU- or ASCII-framed server on a serial port.
// Device may be a real TTY path or, for tests, a "socket://host:port"
// address dialed directly by openSerialPort instead of opened as a TTY.
type SerialConfig struct {
	Device   string
	BaudRate int
	DataBits int
	StopBits StopBits
	Parity   Parity
	Timeout  time.Duration

	// AutoReconnect keeps the server retrying Open after the port drops,
	// waiting ReconnectDelay between attempts, instead of exiting.
	AutoReconnect  bool
	ReconnectDelay time.Duration

	Logger *log.Logger
}

// DefaultSerialConfig returns a SerialConfig for device pre-filled with the
// conventional Modbus serial line defaults (19200 baud, 8 data bits, no
// parity, one stop bit, a 2s reconnect delay), ready for the caller to
// override whichever fields differ from the default line.
func DefaultSerialConfig(device string) SerialConfig {
	return SerialConfig{
		Device:         device,
		BaudRate:       19200,
		DataBits:       8,
		StopBits:       OneStopBit,
		Parity:         NoParity,
		ReconnectDelay: 2 * time.Second,
	}
}

// Policy collects the dispatch-time behavioral switches exposed to callers
// configuring a Server, mirrored per-connection as ServerPolicy.
type Policy struct {
	BroadcastEnable     bool
	IgnoreMissingSlaves bool
	HandleLocalEcho     bool
	ResponseManipulator func(Response) Response
	RequestTracer       func(Request)
}

func (p Policy) toServerPolicy() ServerPolicy {
	return ServerPolicy{
		BroadcastEnable:     p.BroadcastEnable,
		IgnoreMissingSlaves: p.IgnoreMissingSlaves,
		HandleLocalEcho:     p.HandleLocalEcho,
		ResponseManipulator: p.ResponseManipulator,
		RequestTracer:       p.RequestTracer,
	}
}

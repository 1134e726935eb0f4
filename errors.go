// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "errors"

// Sentinel errors returned by the protocol core. Framing- and transport-level
// errors are never escalated to a peer; they are turned into exception
// responses or handled silently per the error handling rules in each framer.
var (
	// ErrInvalidData signals a malformed request or response payload.
	ErrInvalidData = errors.New("modbus: invalid data")
	// ErrShortFrame signals a frame shorter than the minimum for its framing.
	ErrShortFrame = errors.New("modbus: short frame")
	// ErrProtocolError signals a framing-level inconsistency (bad protocol id,
	// bad CRC/LRC, mismatched header fields).
	ErrProtocolError = errors.New("modbus: protocol error")
	// ErrDataSizeExceeded indicates a response payload exceeds the maximum
	// PDU size for the active framing.
	ErrDataSizeExceeded = errors.New("modbus: data size exceeds limit")

	// ErrNoSuchSlave is returned by ServerContext.Slave when no slave
	// context is registered under the requested id.
	ErrNoSuchSlave = errors.New("modbus: no such slave")
	// ErrServerClosed is returned by the package-level Stop when no server
	// occupies the process-wide active slot.
	ErrServerClosed = errors.New("modbus: server closed")
	// ErrServerAlreadyActive is returned by Server.Serve when another server
	// already occupies the process-wide active slot.
	ErrServerAlreadyActive = errors.New("modbus: a server is already active")
	// ErrInvalidConfig signals a malformed Config passed to a Serve method.
	ErrInvalidConfig = errors.New("modbus: invalid configuration")
)

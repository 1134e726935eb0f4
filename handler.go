// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
)

// ServerPolicy holds the behavioral switches a Connection's dispatch obeys.
// It is copied from Server at connection-accept time so a running
// connection is unaffected by later changes to the server's configuration.
type ServerPolicy struct {
	// BroadcastEnable makes slave id 0 execute the request against every
	// slave in the ServerContext and never produce a response.
	BroadcastEnable bool

	// IgnoreMissingSlaves makes a request addressed to an unknown slave id
	// (multi-slave mode only) silently drop instead of answering with
	// GatewayNoResponse.
	IgnoreMissingSlaves bool

	// HandleLocalEcho strips the bytes this connection itself last wrote
	// from the front of the next read, for half-duplex serial links where
	// the adapter echoes transmitted bytes back on the receive line.
	HandleLocalEcho bool

	// ResponseManipulator, if set, is given the chance to rewrite every
	// response before it is encoded, e.g. to inject test-only protocol
	// violations.
	ResponseManipulator func(Response) Response

	// RequestTracer, if set, is called with every decoded request before
	// dispatch, for diagnostics or request logging.
	RequestTracer func(Request)
}

// Connection runs the read-decode-execute-encode-write loop for one
// transport connection. It is the server-side analogue of pymodbus's
// ModbusServerRequestHandler, adapted to Go's one-goroutine-per-connection
// concurrency model rather than a single-threaded event loop multiplexing
// many connections.
type Connection struct {
	rw       io.ReadWriter
	framer   Framer
	registry *FunctionRegistry
	ctx      *ServerContext
	policy   ServerPolicy
	peer     net.Addr
	logger   *log.Logger

	sentEcho []byte
}

// NewConnection builds a Connection around rw, ready to Serve.
func NewConnection(rw io.ReadWriter, framer Framer, registry *FunctionRegistry, ctx *ServerContext, policy ServerPolicy, peer net.Addr, logger *log.Logger) *Connection {
	return &Connection{
		rw:       rw,
		framer:   framer,
		registry: registry,
		ctx:      ctx,
		policy:   policy,
		peer:     peer,
		logger:   logger,
	}
}

// Serve reads from the connection until it errors or returns io.EOF,
// dispatching every decoded request and writing back any response it
// produces. The returned error is nil on a clean peer-initiated close.
func (c *Connection) Serve() error {
	buf := make([]byte, 4096)
	for {
		n, err := c.rw.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if c.policy.HandleLocalEcho {
				chunk = c.stripEcho(chunk)
			}
			var dispatchErr error
			c.framer.Feed(chunk, c.slaveFilter(), func(req Request) {
				if c.policy.RequestTracer != nil {
					c.policy.RequestTracer(req)
				}
				resp, emit := c.Dispatch(req)
				if !emit {
					return
				}
				if c.policy.ResponseManipulator != nil {
					resp = c.policy.ResponseManipulator(resp)
				}
				packet, buildErr := c.framer.BuildPacket(resp)
				if buildErr != nil {
					dispatchErr = buildErr
					return
				}
				if c.policy.HandleLocalEcho {
					c.sentEcho = append(c.sentEcho, packet...)
				}
				if _, writeErr := c.rw.Write(packet); writeErr != nil {
					dispatchErr = writeErr
				}
			})
			if dispatchErr != nil {
				return fmt.Errorf("%w: %v", ErrProtocolError, dispatchErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// slaveFilter builds the SlaveFilter this connection's ServerContext
// accepts, including slave id 0 when broadcast is enabled.
func (c *Connection) slaveFilter() SlaveFilter {
	return buildSlaveFilter(c.ctx, c.policy)
}

// buildSlaveFilter builds the SlaveFilter a ctx/policy pair accepts,
// including slave id 0 when broadcast is enabled. Free of Connection so
// connectionless transports (UDP) can build the same filter per datagram.
func buildSlaveFilter(ctx *ServerContext, policy ServerPolicy) SlaveFilter {
	if ctx.Single() {
		return NewSlaveFilter(true, nil)
	}
	ids := ctx.Slaves()
	if policy.BroadcastEnable {
		ids = append(ids, 0)
	}
	return NewSlaveFilter(false, ids)
}

// Dispatch routes a decoded request to the slave(s) it addresses and
// returns the response to encode, plus whether a response should be
// written at all.
func (c *Connection) Dispatch(req Request) (Response, bool) {
	return dispatch(c.ctx, c.registry, c.policy, req)
}

// dispatch routes a decoded request to the slave(s) it addresses and
// reports the response to encode, plus whether a response should be
// written at all. It is free of Connection so transports without a
// persistent byte stream (UDP) can dispatch a single datagram's request
// without standing up a full Connection.
func dispatch(ctx *ServerContext, registry *FunctionRegistry, policy ServerPolicy, req Request) (resp Response, emit bool) {
	decoder, ok := registry.Lookup(req.FunctionCode)

	if req.SlaveID == 0 && policy.BroadcastEnable {
		// Broadcast never produces a response, even when the function
		// code is unknown or the decoder reports an exception.
		if ok {
			for _, slave := range ctx.All() {
				slave.Execute(decoder, req.FunctionCode, req.Data)
			}
		}
		return Response{}, false
	}

	if !ok {
		resp = exceptionResponse(req.FunctionCode, ExceptionCodeIllegalFunction)
		resp.TransactionID, resp.SlaveID = req.TransactionID, req.SlaveID
		return resp, true
	}

	slave, err := ctx.Slave(req.SlaveID)
	if err != nil {
		if policy.IgnoreMissingSlaves {
			return Response{}, false
		}
		resp = exceptionResponse(req.FunctionCode, ExceptionCodeGatewayNoResponse)
		resp.TransactionID, resp.SlaveID = req.TransactionID, req.SlaveID
		return resp, true
	}

	resp = slave.Execute(decoder, req.FunctionCode, req.Data)
	resp.TransactionID, resp.SlaveID = req.TransactionID, req.SlaveID
	if !resp.ShouldRespond {
		return resp, false
	}
	return resp, true
}

// stripEcho removes, from the front of chunk, whatever prefix of it matches
// bytes this connection itself last wrote, consuming that much of the
// recorded echo buffer. Adapted from pymodbus's _sent/recv handling in
// server/async_io.py for half-duplex RS-485 adapters that loop transmitted
// bytes back onto the receive line.
func (c *Connection) stripEcho(chunk []byte) []byte {
	if len(c.sentEcho) == 0 {
		return chunk
	}
	n := len(c.sentEcho)
	if n > len(chunk) {
		n = len(chunk)
	}
	match := 0
	for match < n && chunk[match] == c.sentEcho[match] {
		match++
	}
	c.sentEcho = c.sentEcho[match:]
	return chunk[match:]
}

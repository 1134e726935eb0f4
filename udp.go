// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"fmt"
	"net"
)

// ServeUDP listens on cfg.Address and serves MBAP-framed requests over UDP
// until Stop is called. UDP is connectionless, so unlike ServeTCP there is
// no per-peer Connection or local-echo handling: each datagram is assumed
// to carry exactly one complete frame, matching how a Modbus/UDP gateway's
// datagram boundaries line up with PDU boundaries.
func (s *Server) ServeUDP(cfg UDPConfig) error {
	s.SetLogger(cfg.Logger)
	pc, err := net.ListenPacket("udp", cfg.Address)
	if err != nil {
		return fmt.Errorf("modbus: listen udp %s: %w", cfg.Address, err)
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, udpListenerCloser{pc})
	s.mu.Unlock()
	s.markStarted()
	s.logger.Printf("udp server listening on %s", pc.LocalAddr())

	framer := newSocketFramer(s.registry)
	buf := make([]byte, 4096)
	for {
		n, peer, err := pc.ReadFrom(buf)
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrProtocolError, err)
		}
		policy := s.policy.toServerPolicy()
		framer.Reset()
		framer.Feed(buf[:n], buildSlaveFilter(s.ctx, policy), func(req Request) {
			if policy.RequestTracer != nil {
				policy.RequestTracer(req)
			}
			resp, emit := dispatch(s.ctx, s.registry, policy, req)
			if !emit {
				return
			}
			if policy.ResponseManipulator != nil {
				resp = policy.ResponseManipulator(resp)
			}
			packet, buildErr := framer.BuildPacket(resp)
			if buildErr != nil {
				s.logger.Printf("udp response to %v: %v", peer, buildErr)
				return
			}
			if _, err := pc.WriteTo(packet, peer); err != nil {
				s.logger.Printf("udp write to %v: %v", peer, err)
			}
		})
	}
}

// udpListenerCloser adapts net.PacketConn to net.Listener's Close-ability so
// it can sit in Server.listeners alongside TCP/Unix listeners.
type udpListenerCloser struct {
	net.PacketConn
}

func (udpListenerCloser) Accept() (net.Conn, error) { return nil, ErrServerClosed }
func (c udpListenerCloser) Addr() net.Addr          { return c.LocalAddr() }

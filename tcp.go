// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"fmt"
	"net"
)

// ServeTCP listens on cfg.Address and serves MBAP-framed connections until
// Stop is called. Adapted from TCPServer.acceptLoop/handleConnection in
// internal/simulator/tcp_server.go, generalized from a single-bank
// DataStore handler into Server's ServerContext-routed dispatch, and from
// a polling accept-with-deadline loop into a blocking Accept that simply
// returns once the listener is closed by Stop.
func (s *Server) ServeTCP(cfg TCPConfig) error {
	s.SetLogger(cfg.Logger)
	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("modbus: listen tcp %s: %w", cfg.Address, err)
	}
	s.trackListener(ln)
	s.logger.Printf("tcp server listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrProtocolError, err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.serveConnection(conn, newSocketFramer(s.registry), conn.RemoteAddr())
		}()
	}
}

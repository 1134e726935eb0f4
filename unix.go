// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"fmt"
	"net"
	"os"
)

// ServeUnix listens on a Unix domain socket at cfg.Path and serves
// MBAP-framed connections until Stop is called, the same framing ServeTCP
// uses since MBAP carries its own length field independent of the
// transport's addressing. Any stale socket file left by a previous run is
// removed before listening, mirroring the common convention for Unix socket
// servers that can't rely on SO_REUSEADDR.
func (s *Server) ServeUnix(cfg UnixConfig) error {
	s.SetLogger(cfg.Logger)
	if _, err := os.Stat(cfg.Path); err == nil {
		os.Remove(cfg.Path)
	}
	ln, err := net.Listen("unix", cfg.Path)
	if err != nil {
		return fmt.Errorf("modbus: listen unix %s: %w", cfg.Path, err)
	}
	s.trackListener(ln)
	s.logger.Printf("unix server listening on %s", ln.Addr())

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

// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ServeTLS listens on cfg.Address and serves TLS-framed connections
// implementing the Modbus/TCP Security Profile until Stop is called.
// Adapted from pymodbus's sslctx_provider (server/async_io.py): TLS 1.2 is
// the floor, and a configured ClientCAFile makes the handshake require and
// verify a client certificate.
func (s *Server) ServeTLS(cfg TLSConfig) error {
	s.SetLogger(cfg.Logger)
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("modbus: load tls certificate: %w", err)
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if cfg.ClientCAFile != "" {
		pem, err := os.ReadFile(cfg.ClientCAFile)
		if err != nil {
			return fmt.Errorf("modbus: read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("%w: client CA file contains no certificates", ErrInvalidConfig)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	ln, err := tls.Listen("tcp", cfg.Address, tlsCfg)
	if err != nil {
		return fmt.Errorf("modbus: listen tls %s: %w", cfg.Address, err)
	}
	s.trackListener(ln)
	s.logger.Printf("tls server listening on %s", ln.Addr())

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
			s.serveConnection(conn, newTLSFramer(s.registry), conn.RemoteAddr())
		}()
	}
}

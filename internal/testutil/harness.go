// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package testutil

import (
	"testing"

	modbus "github.com/fieldbus-tools/modbus-server"
)

// StartRTUSimulator starts modbus.Server.ServeConn over a fresh PTY pair
// using RTU framing, and returns a cleanup func plus the device path a real
// serial client should dial. Generalized from a purpose-built RTU test
// server to any modbus.Server built by the caller.
func StartRTUSimulator(t *testing.T, srv *modbus.Server) (cleanup func(), devicePath string) {
	t.Helper()
	return startPTYSimulator(t, srv, modbus.NewRTUFramerFactory())
}

// StartASCIISimulator is StartRTUSimulator's ASCII-framing counterpart.
func StartASCIISimulator(t *testing.T, srv *modbus.Server) (cleanup func(), devicePath string) {
	t.Helper()
	return startPTYSimulator(t, srv, modbus.NewASCIIFramerFactory())
}

func startPTYSimulator(t *testing.T, srv *modbus.Server, factory modbus.FramerFactory) (cleanup func(), devicePath string) {
	t.Helper()

	pair, err := CreatePtyPair()
	if err != nil {
		t.Fatalf("failed to create pty: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(pair, factory, nil)
	}()

	cleanup = func() {
		pair.Close()
		<-done
	}

	return cleanup, pair.SlavePath
}

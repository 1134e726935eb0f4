// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"net"
	"testing"
	"time"
)

func startTestTCPServer(t *testing.T) (addr string, srv *Server) {
	t.Helper()
	slave := NewSlaveContext(SlaveContextConfig{ID: 1, HoldingRegistersSize: 10})
	slave.HR.Write(0, []uint16{0xCAFE})
	ctx := NewSingleServerContext(slave)
	srv = NewServer(ctx, NewFunctionRegistry(), Policy{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr = ln.Addr().String()
	ln.Close()

	go srv.ServeTCP(TCPConfig{Address: addr})
	srv.WaitStarted()
	t.Cleanup(func() { srv.Stop() })
	return addr, srv
}

func TestServerTCPReadHoldingRegisters(t *testing.T) {
	addr, _ := startTestTCPServer(t)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	adu := []byte{0, 1, 0, 0, 0, 6, 1, FuncCodeReadHoldingRegisters, 0, 0, 0, 1}
	if _, err := conn.Write(adu); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp := make([]byte, 11)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFull(conn, resp); err != nil {
		t.Fatalf("read: %v", err)
	}

	if txID := binary.BigEndian.Uint16(resp[0:2]); txID != 1 {
		t.Errorf("transaction id %d, want 1", txID)
	}
	if resp[7] != FuncCodeReadHoldingRegisters {
		t.Errorf("function code %#x, want %#x", resp[7], FuncCodeReadHoldingRegisters)
	}
	if got := binary.BigEndian.Uint16(resp[9:11]); got != 0xCAFE {
		t.Errorf("register value %#x, want %#x", got, 0xCAFE)
	}
}

func TestServerStopClosesListener(t *testing.T) {
	addr, srv := startTestTCPServer(t)
	if err := srv.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		t.Fatal("expected dial to fail after Stop")
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "testing"

func TestASCIIFramerRoundTrip(t *testing.T) {
	framer := newASCIIFramer(NewFunctionRegistry())
	filter := NewSlaveFilter(true, nil)

	resp := Response{SlaveID: 5, FunctionCode: FuncCodeReadHoldingRegisters, Data: registersToBytes([]uint16{1, 2})}
	packet, err := framer.BuildPacket(resp)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if packet[0] != ':' {
		t.Fatalf("frame does not start with ':': %q", packet)
	}
	if string(packet[len(packet)-2:]) != "\r\n" {
		t.Fatalf("frame does not end with CRLF: %q", packet)
	}

	var got []Request
	framer.Feed(packet, filter, func(r Request) { got = append(got, r) })
	if len(got) != 1 {
		t.Fatalf("got %d requests, want 1", len(got))
	}
	if got[0].SlaveID != resp.SlaveID || got[0].FunctionCode != resp.FunctionCode {
		t.Errorf("got %+v", got[0])
	}
}

func TestASCIIFramerRejectsBadLRC(t *testing.T) {
	framer := newASCIIFramer(NewFunctionRegistry())
	filter := NewSlaveFilter(true, nil)

	// ":" + slaveID(01) + func(03) + data(0002) + wrong LRC(00) + CRLF;
	// the correct LRC for 01 03 00 02 is 0xFA, not 0x00.
	frame := []byte(":0103000200\r\n")

	called := false
	framer.Feed(frame, filter, func(Request) { called = true })
	if called {
		t.Fatal("frame with an incorrect LRC was accepted")
	}
}

func TestASCIIFramerResyncsOnGarbagePrefix(t *testing.T) {
	framer := newASCIIFramer(NewFunctionRegistry())
	filter := NewSlaveFilter(true, nil)

	resp := Response{SlaveID: 1, FunctionCode: FuncCodeReadCoils, Data: []byte{0x01, 0xFF}}
	packet, _ := framer.BuildPacket(resp)

	var got []Request
	framer.Feed(append([]byte("garbage before frame"), packet...), filter, func(r Request) { got = append(got, r) })
	if len(got) != 1 {
		t.Fatalf("got %d requests, want 1", len(got))
	}
}

func TestASCIIFramerSplitAcrossFeeds(t *testing.T) {
	framer := newASCIIFramer(NewFunctionRegistry())
	filter := NewSlaveFilter(true, nil)

	resp := Response{SlaveID: 1, FunctionCode: FuncCodeReadCoils, Data: []byte{0x01, 0xFF}}
	packet, _ := framer.BuildPacket(resp)

	var got []Request
	onReq := func(r Request) { got = append(got, r) }
	framer.Feed(packet[:len(packet)/2], filter, onReq)
	if len(got) != 0 {
		t.Fatalf("decoded before the terminator arrived")
	}
	framer.Feed(packet[len(packet)/2:], filter, onReq)
	if len(got) != 1 {
		t.Fatalf("got %d requests, want 1", len(got))
	}
}

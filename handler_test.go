// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "testing"

func newTestServerContext() (*ServerContext, *SlaveContext) {
	slave := NewSlaveContext(SlaveContextConfig{ID: 1, HoldingRegistersSize: 10})
	return NewSingleServerContext(slave), slave
}

func TestDispatchUnknownFunctionCode(t *testing.T) {
	ctx, _ := newTestServerContext()
	conn := &Connection{registry: NewFunctionRegistry(), ctx: ctx}

	resp, emit := conn.Dispatch(Request{FunctionCode: 0x99, TransactionID: 7, SlaveID: 1})
	if !emit {
		t.Fatal("expected a response to an unknown function code")
	}
	if !resp.IsException() || ExceptionCode(resp.Data[0]) != ExceptionCodeIllegalFunction {
		t.Errorf("got %+v, want IllegalFunction exception", resp)
	}
	if resp.TransactionID != 7 {
		t.Errorf("transaction id %d, want 7", resp.TransactionID)
	}
}

func TestDispatchBroadcastNeverEmits(t *testing.T) {
	ctx, slave := newTestServerContext()
	conn := &Connection{
		registry: NewFunctionRegistry(),
		ctx:      ctx,
		policy:   ServerPolicy{BroadcastEnable: true},
	}

	data := make([]byte, 4)
	data[3] = 0x2A // write single register, value looked up below
	req := Request{FunctionCode: FuncCodeWriteSingleRegister, SlaveID: 0, Data: data}

	_, emit := conn.Dispatch(req)
	if emit {
		t.Fatal("broadcast request must never emit a response")
	}
	values, err := slave.HR.Read(0, 1)
	if err != nil || values[0] != 0x2A {
		t.Errorf("broadcast write did not reach the slave: values=%v err=%v", values, err)
	}
}

func TestDispatchMissingSlavePolicy(t *testing.T) {
	s1 := NewSlaveContext(SlaveContextConfig{ID: 1, HoldingRegistersSize: 10})
	ctx := NewServerContext(s1)
	req := Request{FunctionCode: FuncCodeReadHoldingRegisters, SlaveID: 9, Data: []byte{0, 0, 0, 1}}

	strict := &Connection{registry: NewFunctionRegistry(), ctx: ctx}
	resp, emit := strict.Dispatch(req)
	if !emit || !resp.IsException() || ExceptionCode(resp.Data[0]) != ExceptionCodeGatewayNoResponse {
		t.Errorf("strict policy: got (%+v, %v), want GatewayNoResponse exception", resp, emit)
	}

	lenient := &Connection{registry: NewFunctionRegistry(), ctx: ctx, policy: ServerPolicy{IgnoreMissingSlaves: true}}
	_, emit = lenient.Dispatch(req)
	if emit {
		t.Error("IgnoreMissingSlaves policy should silently drop the request")
	}
}

func TestStripEcho(t *testing.T) {
	conn := &Connection{}
	conn.sentEcho = []byte{0xAA, 0xBB, 0xCC}

	got := conn.stripEcho([]byte{0xAA, 0xBB, 0xCC, 0x01, 0x02})
	want := []byte{0x01, 0x02}
	if string(got) != string(want) {
		t.Errorf("got % x, want % x", got, want)
	}
	if len(conn.sentEcho) != 0 {
		t.Errorf("sentEcho not drained: %v", conn.sentEcho)
	}
}

func TestStripEchoPartialMatchStopsAtFirstDivergence(t *testing.T) {
	conn := &Connection{}
	conn.sentEcho = []byte{0xAA, 0xBB, 0xCC}

	got := conn.stripEcho([]byte{0xAA, 0x99, 0x02})
	want := []byte{0x99, 0x02}
	if string(got) != string(want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

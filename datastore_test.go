// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "testing"

func TestBitBlockReadWrite(t *testing.T) {
	b := newBitBlock(100, 10)

	if err := b.Write(100, []bool{true, false, true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	values, err := b.Read(100, 3)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []bool{true, false, true}
	for i, v := range want {
		if values[i] != v {
			t.Errorf("bit %d: got %v, want %v", i, values[i], v)
		}
	}
}

func TestBitBlockOutOfRange(t *testing.T) {
	b := newBitBlock(100, 10)

	tests := []struct {
		name  string
		addr  uint16
		count uint16
	}{
		{"before base", 99, 1},
		{"past end", 105, 10},
		{"zero count", 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Read(tt.addr, tt.count); err != ExceptionCodeIllegalDataAddress {
				t.Errorf("got %v, want ExceptionCodeIllegalDataAddress", err)
			}
		})
	}
}

func TestRegisterBlockMaskWrite(t *testing.T) {
	r := newRegisterBlock(0, 1)
	if err := r.Write(0, []uint16{0x0012}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// AND 0xF2 OR 0x25 applied to 0x12 yields 0x17, the worked example from
	// the Modbus spec's MaskWriteRegister definition.
	if err := r.MaskWrite(0, 0x00F2, 0x0025); err != nil {
		t.Fatalf("mask write: %v", err)
	}
	values, err := r.Read(0, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if values[0] != 0x0017 {
		t.Errorf("got %#x, want %#x", values[0], 0x0017)
	}
}

func TestServerContextSingleWildcard(t *testing.T) {
	slave := NewSlaveContext(SlaveContextConfig{ID: 1, HoldingRegistersSize: 10})
	ctx := NewSingleServerContext(slave)

	if !ctx.Single() {
		t.Fatal("expected single mode")
	}
	for _, id := range []byte{0, 1, 17, 247} {
		got, err := ctx.Slave(id)
		if err != nil {
			t.Errorf("slave %d: unexpected error %v", id, err)
		}
		if got != slave {
			t.Errorf("slave %d: routed to wrong context", id)
		}
	}
}

func TestServerContextMultiSlaveNoSuchSlave(t *testing.T) {
	s1 := NewSlaveContext(SlaveContextConfig{ID: 1, HoldingRegistersSize: 10})
	s2 := NewSlaveContext(SlaveContextConfig{ID: 2, HoldingRegistersSize: 10})
	ctx := NewServerContext(s1, s2)

	if _, err := ctx.Slave(3); err != ErrNoSuchSlave {
		t.Errorf("got %v, want ErrNoSuchSlave", err)
	}
	got, err := ctx.Slave(2)
	if err != nil || got != s2 {
		t.Errorf("slave 2: got (%v, %v), want (%v, nil)", got, err, s2)
	}
}

func TestSlaveContextExecuteRecoversPanic(t *testing.T) {
	slave := NewSlaveContext(SlaveContextConfig{ID: 1, HoldingRegistersSize: 10})
	panicky := func(byte, []byte, *SlaveContext) Response {
		panic("boom")
	}
	resp := slave.Execute(panicky, FuncCodeReadHoldingRegisters, nil)
	if !resp.IsException() {
		t.Fatalf("expected exception response, got %+v", resp)
	}
	if ExceptionCode(resp.Data[0]) != ExceptionCodeSlaveDeviceFailure {
		t.Errorf("got exception %#x, want SlaveDeviceFailure", resp.Data[0])
	}
}

// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "testing"

func TestClaimActiveRejectsSecondServer(t *testing.T) {
	slave := NewSlaveContext(SlaveContextConfig{ID: 1, HoldingRegistersSize: 10})
	ctx := NewSingleServerContext(slave)
	s1 := NewServer(ctx, NewFunctionRegistry(), Policy{})
	s2 := NewServer(ctx, NewFunctionRegistry(), Policy{})

	if err := claimActive(s1); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	defer releaseActive(s1)

	if err := claimActive(s2); err != ErrServerAlreadyActive {
		t.Fatalf("second claim: got %v, want ErrServerAlreadyActive", err)
	}
}

func TestReleaseActiveFreesSlot(t *testing.T) {
	slave := NewSlaveContext(SlaveContextConfig{ID: 1, HoldingRegistersSize: 10})
	ctx := NewSingleServerContext(slave)
	s1 := NewServer(ctx, NewFunctionRegistry(), Policy{})

	if err := claimActive(s1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	releaseActive(s1)

	s2 := NewServer(ctx, NewFunctionRegistry(), Policy{})
	if err := claimActive(s2); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	releaseActive(s2)
}

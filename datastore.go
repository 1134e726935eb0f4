// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "sync"

// bitBlock is a contiguous, 1-bit-wide DataBlock backing coils or discrete
// inputs: addresses in [base, base+size) are valid, anything else yields
// ExceptionCodeIllegalDataAddress. Adapted from the flat, always-65536-entry
// slices in internal/simulator/datastore.go into an explicitly windowed
// block, since the protocol core must reject out-of-range addresses rather
// than silently serve zeros.
type bitBlock struct {
	mu   sync.RWMutex
	base uint16
	bits []bool
}

// newBitBlock allocates a block covering [base, base+size).
func newBitBlock(base, size uint16) *bitBlock {
	return &bitBlock{base: base, bits: make([]bool, size)}
}

func (b *bitBlock) validate(addr, count uint16) bool {
	if count == 0 {
		return false
	}
	if addr < b.base {
		return false
	}
	end := uint32(addr) + uint32(count)
	return end <= uint32(b.base)+uint32(len(b.bits))
}

// Read returns count bit values starting at addr.
func (b *bitBlock) Read(addr, count uint16) ([]bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.validate(addr, count) {
		return nil, ExceptionCodeIllegalDataAddress
	}
	offset := addr - b.base
	out := make([]bool, count)
	copy(out, b.bits[offset:offset+count])
	return out, nil
}

// Write stores values starting at addr.
func (b *bitBlock) Write(addr uint16, values []bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.validate(addr, uint16(len(values))) {
		return ExceptionCodeIllegalDataAddress
	}
	offset := addr - b.base
	copy(b.bits[offset:], values)
	return nil
}

// registerBlock is a contiguous, 16-bit-wide DataBlock backing holding or
// input registers.
type registerBlock struct {
	mu    sync.RWMutex
	base  uint16
	words []uint16
}

func newRegisterBlock(base, size uint16) *registerBlock {
	return &registerBlock{base: base, words: make([]uint16, size)}
}

func (b *registerBlock) validate(addr, count uint16) bool {
	if count == 0 {
		return false
	}
	if addr < b.base {
		return false
	}
	end := uint32(addr) + uint32(count)
	return end <= uint32(b.base)+uint32(len(b.words))
}

// Read returns count register values starting at addr.
func (b *registerBlock) Read(addr, count uint16) ([]uint16, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.validate(addr, count) {
		return nil, ExceptionCodeIllegalDataAddress
	}
	offset := addr - b.base
	out := make([]uint16, count)
	copy(out, b.words[offset:offset+count])
	return out, nil
}

// Write stores register values starting at addr.
func (b *registerBlock) Write(addr uint16, values []uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.validate(addr, uint16(len(values))) {
		return ExceptionCodeIllegalDataAddress
	}
	offset := addr - b.base
	copy(b.words[offset:], values)
	return nil
}

// MaskWrite performs an AND/OR mask write on a single register.
func (b *registerBlock) MaskWrite(addr, andMask, orMask uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.validate(addr, 1) {
		return ExceptionCodeIllegalDataAddress
	}
	offset := addr - b.base
	current := b.words[offset]
	b.words[offset] = (current & andMask) | (orMask &^ andMask)
	return nil
}

// SlaveContext bundles the four register banks addressed by one Modbus
// slave/unit id. Discrete inputs and input registers are read-only at the
// protocol level: their Write methods exist for internal seeding of test
// fixtures and simulated field values, never called from the PDU codec.
//
// execMu serializes Execute calls: per spec.md a mutual-exclusion discipline
// per SlaveContext, held only for the duration of one decoder call, is
// sufficient even though a single connection's handler never calls Execute
// concurrently with itself — broadcast and multiple connections can.
type SlaveContext struct {
	ID byte

	DI *bitBlock
	CO *bitBlock
	IR *registerBlock
	HR *registerBlock

	execMu sync.Mutex
}

// SlaveContextConfig describes the address window of each bank when
// constructing a SlaveContext.
type SlaveContextConfig struct {
	ID byte

	DiscreteInputsBase, DiscreteInputsSize uint16
	CoilsBase, CoilsSize                   uint16
	InputRegistersBase, InputRegistersSize uint16
	HoldingRegistersBase, HoldingRegistersSize uint16
}

// NewSlaveContext allocates the four banks described by cfg.
func NewSlaveContext(cfg SlaveContextConfig) *SlaveContext {
	return &SlaveContext{
		ID: cfg.ID,
		DI: newBitBlock(cfg.DiscreteInputsBase, cfg.DiscreteInputsSize),
		CO: newBitBlock(cfg.CoilsBase, cfg.CoilsSize),
		IR: newRegisterBlock(cfg.InputRegistersBase, cfg.InputRegistersSize),
		HR: newRegisterBlock(cfg.HoldingRegistersBase, cfg.HoldingRegistersSize),
	}
}

// Execute runs decoder against this context, holding execMu for the
// duration, and recovers any panic raised by a misbehaving decoder as
// ExceptionCodeSlaveDeviceFailure (a datastore internal failure per the
// error handling design).
func (s *SlaveContext) Execute(decoder Decoder, functionCode byte, data []byte) (resp Response) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			resp = exceptionResponse(functionCode, ExceptionCodeSlaveDeviceFailure)
		}
	}()
	return decoder(s.ID, data, s)
}

// ServerContext routes a request's slave id to the SlaveContext that should
// execute it. In single mode every request is routed to the one context
// regardless of its slave id, per the single-slave wildcard invariant.
type ServerContext struct {
	mu     sync.RWMutex
	single bool
	solo   *SlaveContext
	slaves map[byte]*SlaveContext
}

// NewSingleServerContext builds a ServerContext that routes every request to ctx.
func NewSingleServerContext(ctx *SlaveContext) *ServerContext {
	return &ServerContext{single: true, solo: ctx}
}

// NewServerContext builds a multi-slave ServerContext from the given contexts.
func NewServerContext(slaves ...*SlaveContext) *ServerContext {
	m := make(map[byte]*SlaveContext, len(slaves))
	for _, s := range slaves {
		m[s.ID] = s
	}
	return &ServerContext{single: false, slaves: m}
}

// Single reports whether this context is in single-slave mode.
func (c *ServerContext) Single() bool {
	return c.single
}

// Slave looks up the context for id. In single mode it always returns the
// sole context. ErrNoSuchSlave is returned for an unknown id in multi-slave
// mode.
func (c *ServerContext) Slave(id byte) (*SlaveContext, error) {
	if c.single {
		return c.solo, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.slaves[id]
	if !ok {
		return nil, ErrNoSuchSlave
	}
	return s, nil
}

// Slaves returns the known slave ids. In single mode it returns the sole
// context's id.
func (c *ServerContext) Slaves() []byte {
	if c.single {
		return []byte{c.solo.ID}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]byte, 0, len(c.slaves))
	for id := range c.slaves {
		ids = append(ids, id)
	}
	return ids
}

// All returns every SlaveContext, used by the broadcast dispatch branch to
// execute a request against every slave.
func (c *ServerContext) All() []*SlaveContext {
	if c.single {
		return []*SlaveContext{c.solo}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*SlaveContext, 0, len(c.slaves))
	for _, s := range c.slaves {
		out = append(out, s)
	}
	return out
}

// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "sync"

// Function codes built into the registry. Names follow the
// FuncCodeReadCoils / FuncCodeWriteMultipleRegisters convention used
// throughout this codebase; the remaining codes required by the
// server-side PDU codec are added following the same naming scheme.
const (
	FuncCodeReadCoils                  byte = 0x01
	FuncCodeReadDiscreteInputs         byte = 0x02
	FuncCodeReadHoldingRegisters       byte = 0x03
	FuncCodeReadInputRegisters         byte = 0x04
	FuncCodeWriteSingleCoil            byte = 0x05
	FuncCodeWriteSingleRegister        byte = 0x06
	FuncCodeReadExceptionStatus        byte = 0x07
	FuncCodeDiagnostics                byte = 0x08
	FuncCodeWriteMultipleCoils         byte = 0x0F
	FuncCodeWriteMultipleRegisters     byte = 0x10
	FuncCodeReportSlaveID              byte = 0x11
	FuncCodeReadFileRecord             byte = 0x14
	FuncCodeWriteFileRecord            byte = 0x15
	FuncCodeMaskWriteRegister          byte = 0x16
	FuncCodeReadWriteMultipleRegisters byte = 0x17
	FuncCodeReadFIFOQueue              byte = 0x18
	FuncCodeReadDeviceIdentification   byte = 0x2B
)

// Request is a decoded Modbus PDU as produced by a Framer. TransactionID is
// zero on RTU, ASCII and TLS framings, carried bit-exact on SOCKET framing.
type Request struct {
	FunctionCode  byte
	TransactionID uint16
	SlaveID       byte
	Data          []byte
}

// Response is the PDU produced in answer to a Request. ShouldRespond is
// false for broadcast requests and for function codes defined as silent;
// a false ShouldRespond means no bytes are ever put on the wire for it.
type Response struct {
	FunctionCode  byte
	TransactionID uint16
	SlaveID       byte
	Data          []byte
	ShouldRespond bool
}

// Decoder executes one function code's request data against a slave
// context and produces the response PDU (an exception response on any
// validation failure). SlaveID is passed through for decoders whose
// response needs it.
type Decoder func(slaveID byte, data []byte, ctx *SlaveContext) Response

// rtuSizer reports the length in bytes of an RTU frame (including slave id,
// function code, data and the trailing 2-byte CRC) given the bytes received
// so far. ok is false when more bytes are needed before the size is known
// (e.g. a byte-count field hasn't arrived yet).
type rtuSizer func(buf []byte) (size int, ok bool)

// FunctionRegistry maps function codes to their Decoder and, for RTU framing,
// their frame-size rule. It is mutated only before a server starts serving;
// Snapshot returns an independent copy suitable for a running server, per the
// "registry is effectively read-only after start" design note.
type FunctionRegistry struct {
	mu       sync.RWMutex
	decoders map[byte]Decoder
	rtuSizes map[byte]rtuSizer
}

// NewFunctionRegistry returns a registry preloaded with the built-in decoders
// listed in the PDU codec component design.
func NewFunctionRegistry() *FunctionRegistry {
	r := &FunctionRegistry{
		decoders: make(map[byte]Decoder),
		rtuSizes: make(map[byte]rtuSizer),
	}
	registerBuiltins(r)
	return r
}

// Register installs or replaces the decoder for a function code. It also
// installs a default RTU sizer (minimum frame size) for the code unless one
// is already registered via RegisterRTUSize; call RegisterRTUSize first if
// the custom function code needs a different rule.
func (r *FunctionRegistry) Register(code byte, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[code] = d
	if _, ok := r.rtuSizes[code]; !ok {
		r.rtuSizes[code] = fixedRTUSize(rtuMinFrameSize)
	}
}

// RegisterRTUSize installs a custom RTU frame-size rule for a function code,
// the server-side equivalent of the codec's get_rtu_frame_size hook.
func (r *FunctionRegistry) RegisterRTUSize(code byte, sizer rtuSizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtuSizes[code] = sizer
}

// Lookup returns the decoder registered for code, if any.
func (r *FunctionRegistry) Lookup(code byte) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decoders[code]
	return d, ok
}

// rtuSize returns the frame-size rule for code, falling back to the minimum
// RTU frame size for codes with no registered rule (best effort: a bad guess
// here only delays CRC-driven resync, it never corrupts a well-formed frame).
func (r *FunctionRegistry) rtuSize(code byte) rtuSizer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sizer, ok := r.rtuSizes[code]; ok {
		return sizer
	}
	return fixedRTUSize(rtuMinFrameSize)
}

// Snapshot copies the current decoder and RTU-size tables into a new,
// independent registry, so a running server is unaffected by registrations
// made after it started serving.
func (r *FunctionRegistry) Snapshot() *FunctionRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &FunctionRegistry{
		decoders: make(map[byte]Decoder, len(r.decoders)),
		rtuSizes: make(map[byte]rtuSizer, len(r.rtuSizes)),
	}
	for k, v := range r.decoders {
		out.decoders[k] = v
	}
	for k, v := range r.rtuSizes {
		out.rtuSizes[k] = v
	}
	return out
}

// SlaveFilter decides whether a framer should deliver a decoded frame to the
// handler, based on the slave id the frame addresses.
type SlaveFilter struct {
	single  bool
	allowed map[byte]bool
}

// NewSlaveFilter builds a filter from the ids a ServerContext knows about.
// If single is true every id is accepted (the one context handles it
// regardless); otherwise only ids in allowed (plus 0, already included by
// the caller when broadcast is enabled) pass.
func NewSlaveFilter(single bool, allowed []byte) SlaveFilter {
	f := SlaveFilter{single: single, allowed: make(map[byte]bool, len(allowed))}
	for _, id := range allowed {
		f.allowed[id] = true
	}
	return f
}

// Accepts reports whether a frame addressed to id should be delivered.
func (f SlaveFilter) Accepts(id byte) bool {
	if f.single {
		return true
	}
	return f.allowed[id]
}

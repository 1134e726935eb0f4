// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "encoding/binary"

// rtuMinFrameSize is the shortest possible RTU frame: slave id, function
// code and a 2-byte CRC, with no data.
const rtuMinFrameSize = 4

// fixedRTUSize returns an rtuSizer that always reports the same size,
// for function codes whose request has a constant length.
func fixedRTUSize(size int) rtuSizer {
	return func(buf []byte) (int, bool) { return size, true }
}

// registerBuiltins installs the decoders and RTU frame-size rules for every
// function code the PDU codec is required to support. Logic is adapted from
// internal/simulator/handler.go (bounds checks, byte layouts) generalized
// from a single flat DataStore to the windowed SlaveContext banks, plus the
// function codes the original simulator handler left unimplemented.
func registerBuiltins(r *FunctionRegistry) {
	r.rtuSizes[FuncCodeReadCoils] = fixedRTUSize(8)
	r.rtuSizes[FuncCodeReadDiscreteInputs] = fixedRTUSize(8)
	r.rtuSizes[FuncCodeReadHoldingRegisters] = fixedRTUSize(8)
	r.rtuSizes[FuncCodeReadInputRegisters] = fixedRTUSize(8)
	r.rtuSizes[FuncCodeWriteSingleCoil] = fixedRTUSize(8)
	r.rtuSizes[FuncCodeWriteSingleRegister] = fixedRTUSize(8)
	r.rtuSizes[FuncCodeReadExceptionStatus] = fixedRTUSize(rtuMinFrameSize)
	r.rtuSizes[FuncCodeDiagnostics] = fixedRTUSize(8)
	r.rtuSizes[FuncCodeWriteMultipleCoils] = byteCountRTUSize(7)
	r.rtuSizes[FuncCodeWriteMultipleRegisters] = byteCountRTUSize(7)
	r.rtuSizes[FuncCodeReportSlaveID] = fixedRTUSize(rtuMinFrameSize)
	r.rtuSizes[FuncCodeReadFileRecord] = byteCountRTUSize(3)
	r.rtuSizes[FuncCodeWriteFileRecord] = byteCountRTUSize(3)
	r.rtuSizes[FuncCodeMaskWriteRegister] = fixedRTUSize(10)
	r.rtuSizes[FuncCodeReadWriteMultipleRegisters] = byteCountRTUSize(11)
	r.rtuSizes[FuncCodeReadFIFOQueue] = fixedRTUSize(6)
	r.rtuSizes[FuncCodeReadDeviceIdentification] = fixedRTUSize(7)

	r.decoders[FuncCodeReadCoils] = decodeReadBits(FuncCodeReadCoils, func(s *SlaveContext) *bitBlock { return s.CO })
	r.decoders[FuncCodeReadDiscreteInputs] = decodeReadBits(FuncCodeReadDiscreteInputs, func(s *SlaveContext) *bitBlock { return s.DI })
	r.decoders[FuncCodeReadHoldingRegisters] = decodeReadRegisters(FuncCodeReadHoldingRegisters, func(s *SlaveContext) *registerBlock { return s.HR })
	r.decoders[FuncCodeReadInputRegisters] = decodeReadRegisters(FuncCodeReadInputRegisters, func(s *SlaveContext) *registerBlock { return s.IR })
	r.decoders[FuncCodeWriteSingleCoil] = decodeWriteSingleCoil
	r.decoders[FuncCodeWriteSingleRegister] = decodeWriteSingleRegister
	r.decoders[FuncCodeWriteMultipleCoils] = decodeWriteMultipleCoils
	r.decoders[FuncCodeWriteMultipleRegisters] = decodeWriteMultipleRegisters
	r.decoders[FuncCodeMaskWriteRegister] = decodeMaskWriteRegister
	r.decoders[FuncCodeReadWriteMultipleRegisters] = decodeReadWriteMultipleRegisters
	r.decoders[FuncCodeReadExceptionStatus] = decodeReadExceptionStatus
	r.decoders[FuncCodeDiagnostics] = decodeDiagnostics
	r.decoders[FuncCodeReportSlaveID] = decodeReportSlaveID
	r.decoders[FuncCodeReadDeviceIdentification] = decodeReadDeviceIdentification
	r.decoders[FuncCodeReadFIFOQueue] = decodeUnsupported(FuncCodeReadFIFOQueue)
	r.decoders[FuncCodeReadFileRecord] = decodeUnsupported(FuncCodeReadFileRecord)
	r.decoders[FuncCodeWriteFileRecord] = decodeUnsupported(FuncCodeWriteFileRecord)
}

// byteCountRTUSize returns an rtuSizer for requests that carry a trailing
// byte-count field at a known prefix offset, counted from the start of the
// RTU frame (slave id and function code included): prefixLen is the offset
// one past the byte-count field itself. Adapted from calculateExpectedLength
// / getFixedRequestLength in internal/simulator/server.go.
func byteCountRTUSize(prefixLen int) rtuSizer {
	return func(buf []byte) (int, bool) {
		if len(buf) < prefixLen {
			return 0, false
		}
		byteCount := int(buf[prefixLen-1])
		return prefixLen + byteCount + 2, true
	}
}

func byteCount(bits uint16) int {
	return int((bits + 7) / 8)
}

// boolsToBytes packs bits LSB-first and prepends the byte count, matching
// the response layout of ReadCoils/ReadDiscreteInputs.
func boolsToBytes(values []bool) []byte {
	n := byteCount(uint16(len(values)))
	out := make([]byte, 1+n)
	out[0] = byte(n)
	for i, v := range values {
		if v {
			out[1+i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// bytesToBools unpacks quantity bits, LSB-first, from data.
func bytesToBools(data []byte, quantity uint16) []bool {
	out := make([]bool, quantity)
	for i := uint16(0); i < quantity; i++ {
		out[i] = data[i/8]&(1<<uint(i%8)) != 0
	}
	return out
}

// registersToBytes encodes registers big-endian and prepends the byte count.
func registersToBytes(values []uint16) []byte {
	out := make([]byte, 1+2*len(values))
	out[0] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(out[1+2*i:], v)
	}
	return out
}

func bytesToRegisters(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return out
}

func decodeReadBits(fc byte, bank func(*SlaveContext) *bitBlock) Decoder {
	return func(_ byte, data []byte, ctx *SlaveContext) Response {
		if len(data) != 4 {
			return exceptionResponse(fc, ExceptionCodeIllegalDataValue)
		}
		address := binary.BigEndian.Uint16(data[0:2])
		quantity := binary.BigEndian.Uint16(data[2:4])
		if quantity < 1 || quantity > 2000 {
			return exceptionResponse(fc, ExceptionCodeIllegalDataValue)
		}
		values, err := bank(ctx).Read(address, quantity)
		if err != nil {
			return exceptionResponse(fc, toException(err))
		}
		return Response{FunctionCode: fc, Data: boolsToBytes(values), ShouldRespond: true}
	}
}

func decodeReadRegisters(fc byte, bank func(*SlaveContext) *registerBlock) Decoder {
	return func(_ byte, data []byte, ctx *SlaveContext) Response {
		if len(data) != 4 {
			return exceptionResponse(fc, ExceptionCodeIllegalDataValue)
		}
		address := binary.BigEndian.Uint16(data[0:2])
		quantity := binary.BigEndian.Uint16(data[2:4])
		if quantity < 1 || quantity > 125 {
			return exceptionResponse(fc, ExceptionCodeIllegalDataValue)
		}
		values, err := bank(ctx).Read(address, quantity)
		if err != nil {
			return exceptionResponse(fc, toException(err))
		}
		return Response{FunctionCode: fc, Data: registersToBytes(values), ShouldRespond: true}
	}
}

func decodeWriteSingleCoil(_ byte, data []byte, ctx *SlaveContext) Response {
	if len(data) != 4 {
		return exceptionResponse(FuncCodeWriteSingleCoil, ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])
	var state bool
	switch value {
	case 0x0000:
	case 0xFF00:
		state = true
	default:
		return exceptionResponse(FuncCodeWriteSingleCoil, ExceptionCodeIllegalDataValue)
	}
	if err := ctx.CO.Write(address, []bool{state}); err != nil {
		return exceptionResponse(FuncCodeWriteSingleCoil, toException(err))
	}
	return Response{FunctionCode: FuncCodeWriteSingleCoil, Data: append([]byte(nil), data...), ShouldRespond: true}
}

func decodeWriteSingleRegister(_ byte, data []byte, ctx *SlaveContext) Response {
	if len(data) != 4 {
		return exceptionResponse(FuncCodeWriteSingleRegister, ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])
	if err := ctx.HR.Write(address, []uint16{value}); err != nil {
		return exceptionResponse(FuncCodeWriteSingleRegister, toException(err))
	}
	return Response{FunctionCode: FuncCodeWriteSingleRegister, Data: append([]byte(nil), data...), ShouldRespond: true}
}

func decodeWriteMultipleCoils(_ byte, data []byte, ctx *SlaveContext) Response {
	if len(data) < 6 {
		return exceptionResponse(FuncCodeWriteMultipleCoils, ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	bc := data[4]
	if quantity < 1 || quantity > 1968 || int(bc) != byteCount(quantity) || len(data) != 5+int(bc) {
		return exceptionResponse(FuncCodeWriteMultipleCoils, ExceptionCodeIllegalDataValue)
	}
	if err := ctx.CO.Write(address, bytesToBools(data[5:], quantity)); err != nil {
		return exceptionResponse(FuncCodeWriteMultipleCoils, toException(err))
	}
	return Response{FunctionCode: FuncCodeWriteMultipleCoils, Data: append([]byte(nil), data[:4]...), ShouldRespond: true}
}

func decodeWriteMultipleRegisters(_ byte, data []byte, ctx *SlaveContext) Response {
	if len(data) < 6 {
		return exceptionResponse(FuncCodeWriteMultipleRegisters, ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])
	bc := data[4]
	if quantity < 1 || quantity > 123 || bc != byte(2*quantity) || len(data) != 5+int(bc) {
		return exceptionResponse(FuncCodeWriteMultipleRegisters, ExceptionCodeIllegalDataValue)
	}
	if err := ctx.HR.Write(address, bytesToRegisters(data[5:])); err != nil {
		return exceptionResponse(FuncCodeWriteMultipleRegisters, toException(err))
	}
	return Response{FunctionCode: FuncCodeWriteMultipleRegisters, Data: append([]byte(nil), data[:4]...), ShouldRespond: true}
}

func decodeMaskWriteRegister(_ byte, data []byte, ctx *SlaveContext) Response {
	if len(data) != 6 {
		return exceptionResponse(FuncCodeMaskWriteRegister, ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(data[0:2])
	andMask := binary.BigEndian.Uint16(data[2:4])
	orMask := binary.BigEndian.Uint16(data[4:6])
	if err := ctx.HR.MaskWrite(address, andMask, orMask); err != nil {
		return exceptionResponse(FuncCodeMaskWriteRegister, toException(err))
	}
	return Response{FunctionCode: FuncCodeMaskWriteRegister, Data: append([]byte(nil), data...), ShouldRespond: true}
}

func decodeReadWriteMultipleRegisters(_ byte, data []byte, ctx *SlaveContext) Response {
	if len(data) < 9 {
		return exceptionResponse(FuncCodeReadWriteMultipleRegisters, ExceptionCodeIllegalDataValue)
	}
	readAddr := binary.BigEndian.Uint16(data[0:2])
	readQty := binary.BigEndian.Uint16(data[2:4])
	writeAddr := binary.BigEndian.Uint16(data[4:6])
	writeQty := binary.BigEndian.Uint16(data[6:8])
	bc := data[8]
	if readQty < 1 || readQty > 125 || writeQty < 1 || writeQty > 121 ||
		bc != byte(2*writeQty) || len(data) != 9+int(bc) {
		return exceptionResponse(FuncCodeReadWriteMultipleRegisters, ExceptionCodeIllegalDataValue)
	}
	// Write is performed before the read, per the function's definition.
	if err := ctx.HR.Write(writeAddr, bytesToRegisters(data[9:])); err != nil {
		return exceptionResponse(FuncCodeReadWriteMultipleRegisters, toException(err))
	}
	values, err := ctx.HR.Read(readAddr, readQty)
	if err != nil {
		return exceptionResponse(FuncCodeReadWriteMultipleRegisters, toException(err))
	}
	return Response{FunctionCode: FuncCodeReadWriteMultipleRegisters, Data: registersToBytes(values), ShouldRespond: true}
}

// decodeReadExceptionStatus always reports a clear status byte: this
// implementation has no notion of a device-level exception latch separate
// from per-request exception responses.
func decodeReadExceptionStatus(_ byte, data []byte, _ *SlaveContext) Response {
	if len(data) != 0 {
		return exceptionResponse(FuncCodeReadExceptionStatus, ExceptionCodeIllegalDataValue)
	}
	return Response{FunctionCode: FuncCodeReadExceptionStatus, Data: []byte{0x00}, ShouldRespond: true}
}

// decodeDiagnostics implements sub-function 0x0000 (Return Query Data, echo)
// only; any other sub-function is rejected as an illegal data value since
// this server keeps no counters or listen-only mode to report on.
func decodeDiagnostics(_ byte, data []byte, _ *SlaveContext) Response {
	if len(data) < 2 {
		return exceptionResponse(FuncCodeDiagnostics, ExceptionCodeIllegalDataValue)
	}
	subFunction := binary.BigEndian.Uint16(data[0:2])
	if subFunction != 0x0000 {
		return exceptionResponse(FuncCodeDiagnostics, ExceptionCodeIllegalDataValue)
	}
	return Response{FunctionCode: FuncCodeDiagnostics, Data: append([]byte(nil), data...), ShouldRespond: true}
}

// decodeReportSlaveID returns a minimal, always-running identification:
// run indicator 0xFF plus a fixed identifier string.
func decodeReportSlaveID(slaveID byte, data []byte, _ *SlaveContext) Response {
	if len(data) != 0 {
		return exceptionResponse(FuncCodeReportSlaveID, ExceptionCodeIllegalDataValue)
	}
	id := []byte("modbus-server")
	out := make([]byte, 0, 2+len(id))
	out = append(out, byte(len(id)+2), slaveID, 0xFF)
	out = append(out, id...)
	return Response{FunctionCode: FuncCodeReportSlaveID, Data: out, ShouldRespond: true}
}

// decodeReadDeviceIdentification implements the "basic" category (object ids
// 0-2: VendorName, ProductCode, MajorMinorRevision) of MEI type 0x0E, read
// device id code 0x01. Extended/individual access codes are not supported.
func decodeReadDeviceIdentification(_ byte, data []byte, _ *SlaveContext) Response {
	if len(data) != 3 || data[0] != 0x0E {
		return exceptionResponse(FuncCodeReadDeviceIdentification, ExceptionCodeIllegalDataValue)
	}
	readDevIDCode := data[1]
	if readDevIDCode != 0x01 {
		return exceptionResponse(FuncCodeReadDeviceIdentification, ExceptionCodeIllegalDataValue)
	}
	objects := [][2]string{
		{"VendorName", "fieldbus-tools"},
		{"ProductCode", "modbus-server"},
		{"MajorMinorRevision", "1.0"},
	}
	out := []byte{0x0E, 0x01, 0x01, 0x00, 0x00, byte(len(objects))}
	for i, obj := range objects {
		out = append(out, byte(i), byte(len(obj[1])))
		out = append(out, obj[1]...)
	}
	return Response{FunctionCode: FuncCodeReadDeviceIdentification, Data: out, ShouldRespond: true}
}

// decodeUnsupported backs function codes the datastore model cannot serve
// (file records need a record-oriented store this spec's four banks don't
// provide; FIFO queues need a queue store). They always answer
// IllegalFunction rather than silently hanging, keeping behavior explicit.
func decodeUnsupported(fc byte) Decoder {
	return func(_ byte, _ []byte, _ *SlaveContext) Response {
		return exceptionResponse(fc, ExceptionCodeIllegalFunction)
	}
}

// toException maps a block-level error into the exception code carried in
// the response: an ExceptionCode error (the blocks return
// ExceptionCodeIllegalDataAddress) passes through unchanged, and any other
// error is treated as a datastore internal failure.
func toException(err error) ExceptionCode {
	if code, ok := err.(ExceptionCode); ok {
		return code
	}
	return ExceptionCodeSlaveDeviceFailure
}

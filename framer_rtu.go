// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "fmt"

const (
	rtuMinSize int = 4
	rtuMaxSize int = 256
)

// rtuFramer implements RTU framing: no explicit delimiters, frame boundaries
// are inferred from the function code's expected length (via the registry's
// rtuSize rule) and confirmed by a trailing CRC16. Adapted from
// RTUServer.readFrame / calculateExpectedLength in
// internal/simulator/server.go, generalized from a single blocking read
// against a PTY into a push-driven Feed over whatever bytes the transport
// hands it.
type rtuFramer struct {
	registry *FunctionRegistry
	buf      []byte
}

func newRTUFramer(registry *FunctionRegistry) Framer {
	return &rtuFramer{registry: registry}
}

// NewRTUFramerFactory returns a FramerFactory producing RTU framers, for
// callers (such as the internal/testutil harness) that need to name the
// framing explicitly rather than going through a Config-driven Serve method.
func NewRTUFramerFactory() FramerFactory {
	return newRTUFramer
}

func (f *rtuFramer) Reset() {
	f.buf = f.buf[:0]
}

func (f *rtuFramer) Feed(data []byte, filter SlaveFilter, onRequest func(Request)) {
	f.buf = append(f.buf, data...)
	for {
		if len(f.buf) < rtuMinSize {
			return
		}
		functionCode := f.buf[1]
		sizer := f.registry.rtuSize(functionCode)
		size, ok := sizer(f.buf)
		if !ok {
			// Not enough bytes yet to know the byte-count field; wait for more.
			return
		}
		if size > rtuMaxSize {
			// Malformed: no real frame is this long. Drop a byte and resync.
			f.buf = f.buf[1:]
			continue
		}
		if len(f.buf) < size {
			return
		}

		frame := f.buf[:size]
		expected := crc16(frame[:size-2])
		actual := uint16(frame[size-2]) | uint16(frame[size-1])<<8
		if actual != expected {
			// CRC mismatch: this wasn't really a frame boundary here. Drop
			// one byte and keep scanning rather than discarding the whole
			// buffer, so a valid frame starting mid-buffer can still be found.
			f.buf = f.buf[1:]
			continue
		}

		slaveID := frame[0]
		f.buf = f.buf[size:]

		if filter.Accepts(slaveID) {
			onRequest(Request{
				FunctionCode: functionCode,
				SlaveID:      slaveID,
				Data:         frame[2 : size-2],
			})
		}
	}
}

func (f *rtuFramer) BuildPacket(resp Response) ([]byte, error) {
	out := make([]byte, 2+len(resp.Data)+2)
	if len(out) > rtuMaxSize {
		return nil, fmt.Errorf("%w: response too large for RTU framing", ErrDataSizeExceeded)
	}
	out[0] = resp.SlaveID
	out[1] = resp.FunctionCode
	copy(out[2:], resp.Data)
	crc := crc16(out[:len(out)-2])
	out[len(out)-2] = byte(crc)
	out[len(out)-1] = byte(crc >> 8)
	return out, nil
}

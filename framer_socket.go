// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"fmt"
)

const (
	socketProtocolIdentifier uint16 = 0x0000
	socketHeaderSize         int    = 7
	socketMaxLength          uint16 = 260
)

// socketFramer implements the MBAP framing used by TCP, UDP and Unix domain
// socket transports. Feed is driven by whatever
// chunks the transport adapter reads and buffers across calls, since a
// short stream read may not deliver a whole frame at once.
type socketFramer struct {
	registry *FunctionRegistry
	buf      []byte
}

func newSocketFramer(registry *FunctionRegistry) Framer {
	return &socketFramer{registry: registry}
}

func (f *socketFramer) Reset() {
	f.buf = f.buf[:0]
}

func (f *socketFramer) Feed(data []byte, filter SlaveFilter, onRequest func(Request)) {
	f.buf = append(f.buf, data...)
	for {
		if len(f.buf) < socketHeaderSize {
			return
		}
		transactionID := binary.BigEndian.Uint16(f.buf[0:2])
		protocolID := binary.BigEndian.Uint16(f.buf[2:4])
		length := binary.BigEndian.Uint16(f.buf[4:6])
		unitID := f.buf[6]

		if protocolID != socketProtocolIdentifier || length < 2 || length > socketMaxLength {
			// Not a recognizable MBAP header at this offset: drop one byte
			// and try to resynchronize on the next one, rather than
			// stalling forever on garbage.
			f.buf = f.buf[1:]
			continue
		}

		frameEnd := socketHeaderSize + int(length) - 1
		if len(f.buf) < frameEnd {
			return
		}

		pdu := f.buf[socketHeaderSize:frameEnd]
		f.buf = f.buf[frameEnd:]

		if len(pdu) < 1 {
			continue
		}
		if filter.Accepts(unitID) {
			onRequest(Request{
				FunctionCode:  pdu[0],
				TransactionID: transactionID,
				SlaveID:       unitID,
				Data:          pdu[1:],
			})
		}
	}
}

func (f *socketFramer) BuildPacket(resp Response) ([]byte, error) {
	pduLen := 1 + len(resp.Data)
	if pduLen+1 > int(socketMaxLength) {
		return nil, fmt.Errorf("%w: response too large for MBAP framing", ErrDataSizeExceeded)
	}
	out := make([]byte, socketHeaderSize+pduLen)
	binary.BigEndian.PutUint16(out[0:2], resp.TransactionID)
	binary.BigEndian.PutUint16(out[2:4], socketProtocolIdentifier)
	binary.BigEndian.PutUint16(out[4:6], uint16(1+pduLen))
	out[6] = resp.SlaveID
	out[7] = resp.FunctionCode
	copy(out[8:], resp.Data)
	return out, nil
}

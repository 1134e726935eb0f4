// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "fmt"

// tlsFramer implements the Modbus/TCP Security Profile framing: no MBAP
// header and no CRC, since TLS already provides record boundaries and
// integrity. Each TLS record Feed receives is treated as exactly one PDU
// (function code + data), matching pymodbus's treatment of TLS as the one
// framing where the record boundary IS the frame boundary.
//
// The wire format carries no slave id byte. This implementation hardcodes
// SlaveID 0 on every decoded Request, which suits the realistic deployment
// shape for Modbus/TCP Security Profile: a single addressable device behind
// the TLS endpoint, routed through a single-slave ServerContext.
type tlsFramer struct {
	registry *FunctionRegistry
}

func newTLSFramer(registry *FunctionRegistry) Framer {
	return &tlsFramer{registry: registry}
}

func (f *tlsFramer) Reset() {}

func (f *tlsFramer) Feed(data []byte, filter SlaveFilter, onRequest func(Request)) {
	if len(data) < 1 {
		return
	}
	if !filter.Accepts(0) {
		return
	}
	onRequest(Request{
		FunctionCode: data[0],
		SlaveID:      0,
		Data:         data[1:],
	})
}

func (f *tlsFramer) BuildPacket(resp Response) ([]byte, error) {
	if len(resp.Data)+1 > int(socketMaxLength) {
		return nil, fmt.Errorf("%w: response too large for TLS framing", ErrDataSizeExceeded)
	}
	out := make([]byte, 1+len(resp.Data))
	out[0] = resp.FunctionCode
	copy(out[1:], resp.Data)
	return out, nil
}

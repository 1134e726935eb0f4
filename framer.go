// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

// Framer turns a byte stream from one connection into Requests and turns
// Responses back into bytes to write. A Framer is stateful: it owns
// whatever partially-received bytes it is still waiting on, so each
// connection gets its own instance from a framer factory.
type Framer interface {
	// Feed appends newly read bytes to the framer's internal buffer and
	// invokes onRequest once for every complete, well-formed frame it can
	// extract. filter decides which slave ids get delivered; frames
	// addressed to a rejected id are dropped without invoking onRequest.
	// Feed never blocks and never itself performs I/O.
	Feed(data []byte, filter SlaveFilter, onRequest func(Request))

	// BuildPacket renders resp as the bytes to write back to the peer,
	// including any header, trailer or escaping the wire framing requires.
	BuildPacket(resp Response) ([]byte, error)

	// Reset discards any partially-buffered frame, used after a framing
	// error to resynchronize on the next plausible frame start.
	Reset()
}

// FramerFactory constructs a fresh Framer for one new connection.
type FramerFactory func(registry *FunctionRegistry) Framer

// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	asciiStart   = ':'
	asciiMinSize = 9 // :AAFFLL\r\n minimum (1+2+2+2+2)
	asciiMaxSize = 513
)

// asciiFramer implements ASCII framing: frames are delimited by a leading
// ':' and a trailing "\r\n", carrying hex-encoded binary data and an LRC
// checksum. Adapted from asciiPackager.Encode/Decode and
// ASCIIServer.readFrame in internal/simulator/ascii_server.go, generalized
// from a byte-at-a-time PTY read loop into a push-driven Feed.
type asciiFramer struct {
	registry *FunctionRegistry
	buf      []byte
}

func newASCIIFramer(registry *FunctionRegistry) Framer {
	return &asciiFramer{registry: registry}
}

// NewASCIIFramerFactory returns a FramerFactory producing ASCII framers.
func NewASCIIFramerFactory() FramerFactory {
	return newASCIIFramer
}

func (f *asciiFramer) Reset() {
	f.buf = f.buf[:0]
}

func (f *asciiFramer) Feed(data []byte, filter SlaveFilter, onRequest func(Request)) {
	f.buf = append(f.buf, data...)

	for {
		start := bytes.IndexByte(f.buf, asciiStart)
		if start < 0 {
			// No frame start in the buffer at all: discard everything.
			// ':' is a single byte, so no partial start can be pending,
			// and the buffer never grows unbounded on line noise.
			if len(f.buf) > 0 {
				f.buf = f.buf[:0]
			}
			return
		}
		if start > 0 {
			f.buf = f.buf[start:]
		}

		end := bytes.Index(f.buf, []byte("\r\n"))
		if end < 0 {
			if len(f.buf) > asciiMaxSize {
				// Resynchronize: no terminator showed up within a
				// plausible frame length.
				f.buf = f.buf[1:]
				continue
			}
			return
		}

		frame := f.buf[:end+2]
		f.buf = f.buf[end+2:]

		if len(frame) < asciiMinSize {
			continue
		}

		hexData := frame[1:end]
		binaryData, err := hex.DecodeString(string(hexData))
		if err != nil || len(binaryData) < 3 {
			continue
		}

		expectedLRC := lrc8(binaryData[:len(binaryData)-1])
		actualLRC := binaryData[len(binaryData)-1]
		if actualLRC != expectedLRC {
			continue
		}

		slaveID := binaryData[0]
		functionCode := binaryData[1]
		pduData := binaryData[2 : len(binaryData)-1]

		if filter.Accepts(slaveID) {
			onRequest(Request{
				FunctionCode: functionCode,
				SlaveID:      slaveID,
				Data:         pduData,
			})
		}
	}
}

func (f *asciiFramer) BuildPacket(resp Response) ([]byte, error) {
	binaryData := make([]byte, 0, 2+len(resp.Data)+1)
	binaryData = append(binaryData, resp.SlaveID, resp.FunctionCode)
	binaryData = append(binaryData, resp.Data...)
	lrc := lrc8(binaryData)
	binaryData = append(binaryData, lrc)

	if 1+2*len(binaryData)+2 > asciiMaxSize {
		return nil, fmt.Errorf("%w: response too large for ASCII framing", ErrDataSizeExceeded)
	}

	var out bytes.Buffer
	out.WriteByte(asciiStart)
	out.WriteString(strings.ToUpper(hex.EncodeToString(binaryData)))
	out.WriteString("\r\n")
	return out.Bytes(), nil
}

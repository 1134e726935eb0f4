// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import "fmt"

// ExceptionCode is the single-byte code carried in the data field of an
// exception response, as defined by the Modbus Application Protocol.
type ExceptionCode byte

const (
	ExceptionCodeIllegalFunction         ExceptionCode = 0x01
	ExceptionCodeIllegalDataAddress      ExceptionCode = 0x02
	ExceptionCodeIllegalDataValue        ExceptionCode = 0x03
	ExceptionCodeSlaveDeviceFailure      ExceptionCode = 0x04
	ExceptionCodeAcknowledge             ExceptionCode = 0x05
	ExceptionCodeSlaveDeviceBusy         ExceptionCode = 0x06
	ExceptionCodeMemoryParityError       ExceptionCode = 0x08
	ExceptionCodeGatewayPathUnavailable  ExceptionCode = 0x0A
	ExceptionCodeGatewayNoResponse       ExceptionCode = 0x0B
)

// Error implements the error interface so an ExceptionCode can be returned
// and compared directly by decoders.
func (e ExceptionCode) Error() string {
	switch e {
	case ExceptionCodeIllegalFunction:
		return "modbus: illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "modbus: illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "modbus: illegal data value"
	case ExceptionCodeSlaveDeviceFailure:
		return "modbus: slave device failure"
	case ExceptionCodeAcknowledge:
		return "modbus: acknowledge"
	case ExceptionCodeSlaveDeviceBusy:
		return "modbus: slave device busy"
	case ExceptionCodeMemoryParityError:
		return "modbus: memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		return "modbus: gateway path unavailable"
	case ExceptionCodeGatewayNoResponse:
		return "modbus: gateway target device failed to respond"
	default:
		return fmt.Sprintf("modbus: exception %#x", byte(e))
	}
}

// exceptionResponse builds the Response for a function code that failed with
// the given exception code: function code OR'd with 0x80 and one data byte.
func exceptionResponse(functionCode byte, code ExceptionCode) Response {
	return Response{
		FunctionCode:  functionCode | 0x80,
		Data:          []byte{byte(code)},
		ShouldRespond: true,
	}
}

// IsException reports whether the response carries an exception code.
func (r Response) IsException() bool {
	return r.FunctionCode&0x80 != 0
}

// Package txparser decodes a restricted fixed-layout raw Bitcoin
// transaction: single-byte input/output counts and 41-byte legacy
// inputs. It recognizes a closed set of output script shapes; general
// script interpretation is out of scope.
package txparser

import (
	"errors"

	"github.com/goodnatureofminers/btcrelay7000-backend/pkg/bytecodec"
)

const (
	// varIntThreshold is the first multi-byte varint marker; counts at
	// or above it are not decoded.
	varIntThreshold = 0xfd

	numInputsOffset = 5
	inputLength     = 41

	// Per-output layout: 8-byte value, script-length byte, script.
	valueLength        = 8
	scriptLenOffset    = valueLength
	opReturnOffset     = valueLength + 1
	opReturnLenOffset  = valueLength + 2
	opReturnDataOffset = valueLength + 3

	opReturn   = 0x6a
	opDup      = 0x76
	opHash160  = 0xa9
	witnessTag = 0x00

	p2wshOutputLength  = 43
	p2wpkhOutputLength = 31
	p2pkhOutputLength  = 34
	p2shOutputLength   = 32

	// minOpReturnScript is the opcode plus push-length bytes; shorter
	// scripts cannot carry the marker and length ExtractOpReturnData
	// reads.
	minOpReturnScript = 2
	// maxOpReturnScript bounds an OP_RETURN script to a single short
	// data push (below OP_PUSHDATA1).
	maxOpReturnScript = 76
)

var (
	// ErrUnsupportedVarInt is returned for multi-byte transaction counts.
	ErrUnsupportedVarInt = errors.New("unsupported varint count")
	// ErrUnknownScriptType is returned for unrecognized output scripts.
	ErrUnknownScriptType = errors.New("unknown script type")
	// ErrIndexOutOfRange is returned for an output index past the count.
	ErrIndexOutOfRange = errors.New("output index out of range")
	// ErrMalformedOutput is returned when an output does not carry the
	// OP_RETURN marker where one is required.
	ErrMalformedOutput = errors.New("malformed op_return output")
)

// ExtractNumInputs reads the single-byte input count.
func ExtractNumInputs(rawTx []byte) (uint8, error) {
	return countByte(rawTx, numInputsOffset)
}

// ExtractNumOutputs reads the single-byte output count.
func ExtractNumOutputs(rawTx []byte) (uint8, error) {
	numInputs, err := ExtractNumInputs(rawTx)
	if err != nil {
		return 0, err
	}
	return countByte(rawTx, FindFirstOutputOffset(numInputs)-1)
}

// FindFirstOutputOffset returns the byte offset of the first output
// under the fixed 41-byte-input layout.
func FindFirstOutputOffset(numInputs uint8) int {
	return 7 + inputLength*int(numInputs)
}

// OutputLength classifies an output by its script-length/opcode prefix
// and returns the full output size in bytes.
func OutputLength(scriptPrefix [2]byte) (int, error) {
	scriptLen, opcode := scriptPrefix[0], scriptPrefix[1]
	switch {
	case scriptLen == 0x22 && opcode == witnessTag:
		return p2wshOutputLength, nil
	case scriptLen == 0x16 && opcode == witnessTag:
		return p2wpkhOutputLength, nil
	case scriptLen == 0x19 && opcode == opDup:
		return p2pkhOutputLength, nil
	case scriptLen == 0x17 && opcode == opHash160:
		return p2shOutputLength, nil
	case opcode == opReturn && scriptLen >= minOpReturnScript && scriptLen < maxOpReturnScript:
		return valueLength + 1 + int(scriptLen), nil
	default:
		return 0, ErrUnknownScriptType
	}
}

// ExtractOutputAtIndex returns the raw bytes of the output at index,
// walking outputs sequentially from the first output offset.
func ExtractOutputAtIndex(rawTx []byte, index uint8) ([]byte, error) {
	numInputs, err := ExtractNumInputs(rawTx)
	if err != nil {
		return nil, err
	}
	numOutputs, err := ExtractNumOutputs(rawTx)
	if err != nil {
		return nil, err
	}
	if index >= numOutputs {
		return nil, ErrIndexOutOfRange
	}

	offset := FindFirstOutputOffset(numInputs)
	for i := uint8(0); ; i++ {
		prefix, err := bytecodec.Slice(rawTx, offset+scriptLenOffset, 2)
		if err != nil {
			return nil, err
		}
		length, err := OutputLength([2]byte{prefix[0], prefix[1]})
		if err != nil {
			return nil, err
		}
		if i == index {
			return bytecodec.Slice(rawTx, offset, length)
		}
		offset += length
	}
}

// ExtractOpReturnData returns the data payload of an OP_RETURN output.
func ExtractOpReturnData(output []byte) ([]byte, error) {
	marker, err := bytecodec.Slice(output, opReturnOffset, 1)
	if err != nil {
		return nil, err
	}
	if marker[0] != opReturn {
		return nil, ErrMalformedOutput
	}
	lengthByte, err := bytecodec.Slice(output, opReturnLenOffset, 1)
	if err != nil {
		return nil, err
	}
	return bytecodec.Slice(output, opReturnDataOffset, int(lengthByte[0]))
}

func countByte(rawTx []byte, offset int) (uint8, error) {
	b, err := bytecodec.Slice(rawTx, offset, 1)
	if err != nil {
		return 0, err
	}
	if b[0] >= varIntThreshold {
		return 0, ErrUnsupportedVarInt
	}
	return b[0], nil
}

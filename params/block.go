package params

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// BlockSize is the size of one persistent parameter block
const BlockSize = 64

// Block layout: sequence, payload length, CBOR payload, checksum. The
// checksum makes every byte of the block sum to zero.
const (
	blockSeq     = 0
	blockLen     = 1
	blockPayload = 2
	maxPayload   = BlockSize - blockPayload - 1
)

var (
	ErrNoBlock      = errors.New("no valid parameter block")
	ErrBlockTooLong = errors.New("parameters do not fit a block")
)

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeBlock serializes p into a block image tagged with seq
func EncodeBlock(p *DriveParameters, seq uint8) ([BlockSize]byte, error) {
	var blk [BlockSize]byte

	payload, err := encMode.Marshal(p)
	if err != nil {
		return blk, errors.Wrap(err, "encode parameters")
	}
	if len(payload) > maxPayload {
		return blk, errors.Wrapf(ErrBlockTooLong, "%d bytes", len(payload))
	}

	blk[blockSeq] = seq
	blk[blockLen] = uint8(len(payload))
	copy(blk[blockPayload:], payload)
	var sum byte
	for _, b := range blk[:BlockSize-1] {
		sum += b
	}
	blk[BlockSize-1] = -sum
	return blk, nil
}

// DecodeBlock validates a block image and returns its parameters and
// sequence number
func DecodeBlock(blk []byte) (DriveParameters, uint8, error) {
	var p DriveParameters
	if len(blk) != BlockSize {
		return p, 0, errors.Errorf("block is %d bytes, want %d", len(blk), BlockSize)
	}
	var sum byte
	for _, b := range blk {
		sum += b
	}
	if sum != 0 {
		return p, 0, errors.New("block checksum mismatch")
	}
	n := int(blk[blockLen])
	if n == 0 || n > maxPayload {
		return p, 0, errors.Errorf("bad payload length %d", n)
	}
	if err := cbor.Unmarshal(blk[blockPayload:blockPayload+n], &p); err != nil {
		return p, 0, errors.Wrap(err, "decode parameters")
	}
	return p, blk[blockSeq], nil
}

// newer reports whether sequence a was written after b, allowing for
// wrap around
func newer(a, b uint8) bool {
	return int8(a-b) > 0
}

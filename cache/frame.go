package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/aggcache/codec"
	"github.com/hupe1980/aggcache/internal/hash"
	"github.com/hupe1980/aggcache/segment"
)

// ErrCorruptFrame is returned when a stored frame fails validation.
var ErrCorruptFrame = errors.New("cache: corrupt frame")

var frameMagic = [4]byte{'A', 'G', 'C', 'F'}

const frameVersion = 1

// EncodeFrame serializes v with c, compresses the result and wraps it in a
// frame:
//
//	magic "AGCF" | version u8 | codec name length u8 | codec name |
//	compressed block | crc32c u32 LE over all preceding bytes
//
// The codec name travels with the data so readers need no configuration.
func EncodeFrame(c codec.Codec, comp codec.Compression, v any) ([]byte, error) {
	payload, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cache: encode %T: %w", v, err)
	}
	block, err := codec.Compress(payload, comp)
	if err != nil {
		return nil, err
	}
	name := c.Name()
	if len(name) > 255 {
		return nil, fmt.Errorf("cache: codec name %q too long", name)
	}

	var buf bytes.Buffer
	buf.Grow(len(frameMagic) + 2 + len(name) + len(block) + 4)
	buf.Write(frameMagic[:])
	buf.WriteByte(frameVersion)
	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)
	buf.Write(block)

	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], hash.CRC32C(buf.Bytes()))
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

// DecodeFrame validates a frame and decodes its payload into v.
func DecodeFrame(data []byte, v any) error {
	if len(data) < len(frameMagic)+2+4 {
		return fmt.Errorf("%w: short frame (%d bytes)", ErrCorruptFrame, len(data))
	}
	body, tail := data[:len(data)-4], data[len(data)-4:]
	if hash.CRC32C(body) != binary.LittleEndian.Uint32(tail) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorruptFrame)
	}
	if !bytes.Equal(body[:4], frameMagic[:]) {
		return fmt.Errorf("%w: bad magic", ErrCorruptFrame)
	}
	if body[4] != frameVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptFrame, body[4])
	}
	n := int(body[5])
	if len(body) < 6+n {
		return fmt.Errorf("%w: truncated codec name", ErrCorruptFrame)
	}
	name := string(body[6 : 6+n])
	c, ok := codec.ByName(name)
	if !ok {
		return fmt.Errorf("%w: unknown codec %q", ErrCorruptFrame, name)
	}
	payload, err := codec.Decompress(body[6+n:])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptFrame, err)
	}
	if err := c.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrCorruptFrame, err)
	}
	return nil
}

// decodeHeader decodes a header frame and checks its identity.
func decodeHeader(data []byte) (*segment.Header, error) {
	var h segment.Header
	if err := DecodeFrame(data, &h); err != nil {
		return nil, err
	}
	if !h.Verify() {
		return nil, fmt.Errorf("%w: header %s does not match its content", ErrCorruptFrame, h.ID)
	}
	return &h, nil
}

func decodeBody(data []byte) (*segment.Body, error) {
	var b segment.Body
	if err := DecodeFrame(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

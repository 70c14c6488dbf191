package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nickthorpe71/legend/internal/feature"
)

// Envelope layout:
//
//	magic    [4]byte  "LGND"
//	version  uint16   big endian
//	reserved uint16   zero
//	payload  zstd frame of the msgpack-encoded State
const (
	EnvelopeVersion uint16 = 1
	headerSize             = 8

	// MaxPayloadBytes bounds the decompressed payload accepted on decode.
	MaxPayloadBytes = 64 << 20
)

var magic = [4]byte{'L', 'G', 'N', 'D'}

// Codec turns a State into envelope bytes and back.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec creates a codec with its own zstd encoder and decoder.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderCRC(true))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPayloadBytes))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Close releases the compressor resources.
func (c *Codec) Close() error {
	c.dec.Close()
	return c.enc.Close()
}

// Marshal serializes s into its canonical binary payload (uncompressed).
func (c *Codec) Marshal(s *feature.State) ([]byte, error) {
	payload, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serializing state: %w", err)
	}
	return payload, nil
}

// Seal compresses a payload produced by Marshal and wraps it in the envelope.
func (c *Codec) Seal(payload []byte) []byte {
	out := make([]byte, headerSize, headerSize+len(payload)/2)
	copy(out[:4], magic[:])
	binary.BigEndian.PutUint16(out[4:6], EnvelopeVersion)
	return c.enc.EncodeAll(payload, out)
}

// Encode is Marshal followed by Seal.
func (c *Codec) Encode(s *feature.State) ([]byte, error) {
	payload, err := c.Marshal(s)
	if err != nil {
		return nil, err
	}
	return c.Seal(payload), nil
}

// Decode parses envelope bytes. Every failure matches feature.ErrCorrupted;
// an unknown version additionally matches feature.ErrUnsupportedVersion.
func (c *Codec) Decode(data []byte) (*feature.State, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: artifact is %d bytes, shorter than the header", feature.ErrCorrupted, len(data))
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", feature.ErrCorrupted, data[:4])
	}
	if v := binary.BigEndian.Uint16(data[4:6]); v != EnvelopeVersion {
		return nil, &feature.VersionError{Version: v, Supported: EnvelopeVersion}
	}

	payload, err := c.dec.DecodeAll(data[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing: %v", feature.ErrCorrupted, err)
	}

	var s feature.State
	if err := msgpack.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("%w: deserializing: %v", feature.ErrCorrupted, err)
	}
	if s.Version != feature.FormatVersion {
		return nil, &feature.VersionError{Version: uint16(s.Version), Supported: feature.FormatVersion}
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", feature.ErrCorrupted, err)
	}
	s.Normalize()
	return &s, nil
}

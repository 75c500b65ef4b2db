package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses individual blocks.
type Codec interface {
	// Name identifies the codec in logs and metrics.
	Name() string
	// Compress returns the encoded form of src, or nil when src is incompressible.
	Compress(src []byte) ([]byte, error)
	// Decompress decodes src into a block of exactly size bytes.
	Decompress(src []byte, size int) ([]byte, error)
}

var (
	errFrameTooSmall = errors.New("cache: compressed frame too small")
	errSizeMismatch  = errors.New("cache: decompressed size mismatch")
)

// LZ4Codec is a fast block codec suited to hot data.
type LZ4Codec struct{}

// Name implements Codec.
func (LZ4Codec) Name() string { return "lz4" }

// Compress implements Codec.
func (LZ4Codec) Compress(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))

	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return dst[:n], nil
}

// Decompress implements Codec.
func (LZ4Codec) Decompress(src []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, errSizeMismatch
	}
	return dst, nil
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return dec
}

// ZstdCodec trades speed for a better ratio than LZ4Codec.
type ZstdCodec struct{}

// Name implements Codec.
func (ZstdCodec) Name() string { return "zstd" }

// Compress implements Codec.
func (ZstdCodec) Compress(src []byte) ([]byte, error) {
	enc := getZstdEncoder()
	defer zstdEncoderPool.Put(enc)

	return enc.EncodeAll(src, nil), nil
}

// Decompress implements Codec.
func (ZstdCodec) Decompress(src []byte, size int) ([]byte, error) {
	dec := getZstdDecoder()
	defer zstdDecoderPool.Put(dec)

	out, err := dec.DecodeAll(src, make([]byte, 0, size))
	if err != nil {
		return nil, err
	}
	if len(out) != size {
		return nil, errSizeMismatch
	}
	return out, nil
}

// Frame: [UncompressedSize uint32][CompressedSize uint32][Data...]
// CompressedSize 0 means Data is stored raw.
const frameHeaderSize = 8

// Compressed stores encoded blocks in an inner BlockStore, so the inner
// store's byte bound applies to compressed sizes.
//
// Blocks that do not shrink below 90% of their size are stored raw.
// A frame that fails to decode is reported as a miss.
type Compressed struct {
	inner BlockStore
	codec Codec

	bytesIn     atomic.Int64
	bytesStored atomic.Int64
	corrupt     atomic.Int64
}

// NewCompressed wraps inner with codec. A nil codec selects LZ4Codec.
func NewCompressed(inner BlockStore, codec Codec) *Compressed {
	if codec == nil {
		codec = LZ4Codec{}
	}
	return &Compressed{inner: inner, codec: codec}
}

// Codec returns the codec in use.
func (c *Compressed) Codec() Codec { return c.codec }

// Get returns a decoded copy of the block.
func (c *Compressed) Get(ctx context.Context, key string) ([]byte, bool) {
	frame, ok := c.inner.Get(ctx, key)
	if !ok {
		return nil, false
	}

	b, err := c.decode(frame)
	if err != nil {
		c.corrupt.Add(1)
		return nil, false
	}
	return b, true
}

// Set encodes b and stores the frame in the inner store.
func (c *Compressed) Set(ctx context.Context, key string, b []byte) {
	frame, err := c.encode(b)
	if err != nil {
		return
	}
	c.bytesIn.Add(int64(len(b)))
	c.bytesStored.Add(int64(len(frame)))
	c.inner.Set(ctx, key, frame)
}

// Ratio returns stored bytes over input bytes for every Set so far.
func (c *Compressed) Ratio() float64 {
	in := c.bytesIn.Load()
	if in == 0 {
		return 1
	}
	return float64(c.bytesStored.Load()) / float64(in)
}

// Corrupt returns the number of frames that failed to decode.
func (c *Compressed) Corrupt() int64 {
	return c.corrupt.Load()
}

// Stats reports the inner store statistics, if it has any.
func (c *Compressed) Stats() Stats {
	if sp, ok := c.inner.(StatsProvider); ok {
		return sp.Stats()
	}
	return Stats{}
}

func (c *Compressed) encode(b []byte) ([]byte, error) {
	compressed, err := c.codec.Compress(b)
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(b))*0.9 {
		frame := make([]byte, frameHeaderSize+len(b))
		binary.LittleEndian.PutUint32(frame[0:], uint32(len(b)))
		binary.LittleEndian.PutUint32(frame[4:], 0)
		copy(frame[frameHeaderSize:], b)
		return frame, nil
	}

	frame := make([]byte, frameHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(frame[0:], uint32(len(b)))
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(compressed)))
	copy(frame[frameHeaderSize:], compressed)
	return frame, nil
}

func (c *Compressed) decode(frame []byte) ([]byte, error) {
	if len(frame) < frameHeaderSize {
		return nil, errFrameTooSmall
	}

	size := binary.LittleEndian.Uint32(frame[0:])
	compressedSize := binary.LittleEndian.Uint32(frame[4:])

	if compressedSize == 0 {
		if uint32(len(frame)) < frameHeaderSize+size {
			return nil, errFrameTooSmall
		}
		return frame[frameHeaderSize : frameHeaderSize+size], nil
	}

	if uint32(len(frame)) < frameHeaderSize+compressedSize {
		return nil, errFrameTooSmall
	}
	return c.codec.Decompress(frame[frameHeaderSize:frameHeaderSize+compressedSize], int(size))
}

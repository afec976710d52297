package upstreamrpc

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
)

// ZstdName is the grpc-go compressor name negotiated over grpc-encoding.
// Registering it (via this package's init) only makes the wire format
// decodable; callers still need to opt into it: dialers pass
// grpc.UseCompressor (cmd/indexer and the pkg/mockstream and
// pkg/streamclient test helpers do), and mockstream.Server calls
// SetSendCompressor on every response stream, mirroring the Zstd
// compression the original mock server enables on both directions of the
// channel.
const ZstdName = "zstd"

type zstdCompressor struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
}

func newZstdCompressor() *zstdCompressor {
	c := &zstdCompressor{}
	c.encoderPool.New = func() any {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			panic(fmt.Sprintf("upstreamrpc: construct zstd encoder: %v", err))
		}
		return enc
	}
	c.decoderPool.New = func() any {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("upstreamrpc: construct zstd decoder: %v", err))
		}
		return dec
	}
	return c
}

func (c *zstdCompressor) Name() string { return ZstdName }

func (c *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	enc := c.encoderPool.Get().(*zstd.Encoder)
	enc.Reset(w)
	return &pooledEncoder{Encoder: enc, pool: &c.encoderPool}, nil
}

func (c *zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	dec := c.decoderPool.Get().(*zstd.Decoder)
	if err := dec.Reset(r); err != nil {
		return nil, fmt.Errorf("upstreamrpc: reset zstd decoder: %w", err)
	}
	return &pooledDecoder{Decoder: dec, pool: &c.decoderPool}, nil
}

type pooledEncoder struct {
	*zstd.Encoder
	pool *sync.Pool
}

func (p *pooledEncoder) Close() error {
	err := p.Encoder.Close()
	p.pool.Put(p.Encoder)
	return err
}

type pooledDecoder struct {
	*zstd.Decoder
	pool *sync.Pool
}

func (p *pooledDecoder) Read(b []byte) (int, error) {
	return p.Decoder.Read(b)
}

func init() {
	encoding.RegisterCompressor(newZstdCompressor())
}

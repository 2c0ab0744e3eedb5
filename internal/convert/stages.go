package convert

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	stageJSON   = "json"
	stageGzip   = "gzip"
	stageZstd   = "zstd"
	stageBase64 = "base64"
)

// stage is a reversible bytes-to-bytes transform.
type stage struct {
	name string
	text bool // output is always ASCII
	dump func([]byte) ([]byte, error)
	load func([]byte) ([]byte, error)
}

var byteStages = map[string]stage{
	stageGzip:   {name: stageGzip, dump: gzipDump, load: gzipLoad},
	stageZstd:   {name: stageZstd, dump: zstdDump, load: zstdLoad},
	stageBase64: {name: stageBase64, text: true, dump: base64Dump, load: base64Load},
}

func dumpJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("convert: json: %w", err)
	}
	return b, nil
}

// loadJSON decodes a JSON document. Invalid UTF-8 is replaced with U+FFFD
// and reported rather than failing the read.
func (c *Converter) loadJSON(b []byte) (any, error) {
	if !utf8.Valid(b) {
		c.opts.Logger.Warn().Str("converter", c.name).Int("bytes", len(b)).
			Msg("stored value is not valid UTF-8, replacing invalid sequences")
		c.opts.Metrics.Degraded()
		b = bytes.ToValidUTF8(b, []byte("\uFFFD"))
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("convert %s: json: %w", c.name, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("convert %s: json: trailing data", c.name)
	}
	return v, nil
}

// gzip output has no header timestamp or name, so equal input gives equal bytes.
func gzipDump(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipLoad(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// zstdCodecs builds the shared encoder and decoder. EncodeAll and DecodeAll
// are safe for concurrent use.
func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

func zstdDump(b []byte) ([]byte, error) {
	enc, _, err := zstdCodecs()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(b, nil), nil
}

func zstdLoad(b []byte) ([]byte, error) {
	_, dec, err := zstdCodecs()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(b, nil)
}

func base64Dump(b []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(out, b)
	return out, nil
}

func base64Load(b []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(b)))
	n, err := base64.StdEncoding.Decode(out, b)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

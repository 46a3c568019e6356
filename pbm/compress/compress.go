// Package compress wraps the codec libraries the checkpoint store's
// remote backends use to shrink the checkpoint snapshot blob before
// upload, the same libraries pbm/restore uses for oplog chunks.
package compress

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/pgzip"
	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
)

// CompressionType names a codec. The zero value, CompressionTypeNone,
// passes data through unchanged.
type CompressionType string

const (
	CompressionTypeNone   CompressionType = ""
	CompressionTypeSnappy CompressionType = "snappy"
	CompressionTypeS2     CompressionType = "s2"
	CompressionTypeGzip   CompressionType = "gzip"
	CompressionTypeLZ4    CompressionType = "lz4"
)

// Compress returns data encoded with c.
func Compress(data []byte, c CompressionType) ([]byte, error) {
	var buf bytes.Buffer
	w, err := Writer(&buf, c)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrapf(err, "compress with %s", c)
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrapf(err, "close %s writer", c)
	}
	return buf.Bytes(), nil
}

// Decompress fully reads and decodes data encoded with c.
func Decompress(data []byte, c CompressionType) ([]byte, error) {
	r, err := Reader(bytes.NewReader(data), c)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	return out, errors.Wrapf(err, "decompress %s", c)
}

// Writer wraps w with the codec named by c.
func Writer(w io.Writer, c CompressionType) (io.WriteCloser, error) {
	switch c {
	case CompressionTypeNone:
		return nopWriteCloser{w}, nil
	case CompressionTypeSnappy:
		return snappy.NewBufferedWriter(w), nil
	case CompressionTypeS2:
		return s2.NewWriter(w), nil
	case CompressionTypeGzip:
		return pgzip.NewWriter(w), nil
	case CompressionTypeLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, errors.Errorf("unknown compression type %q", c)
	}
}

// Reader wraps r with the codec named by c.
//
// Up until some deployments the S2 codec was mistakenly labeled
// "snappy" on disk (they share a frame-less variant); if a snappy read
// fails with a corruption error, callers should retry the same bytes
// as CompressionTypeS2 — see pbm/checkpoint for that fallback.
func Reader(r io.Reader, c CompressionType) (io.ReadCloser, error) {
	switch c {
	case CompressionTypeNone:
		return io.NopCloser(r), nil
	case CompressionTypeSnappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case CompressionTypeS2:
		return io.NopCloser(s2.NewReader(r)), nil
	case CompressionTypeGzip:
		gr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "new gzip reader")
		}
		return gr, nil
	case CompressionTypeLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, errors.Errorf("unknown compression type %q", c)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// IsCorrupt reports whether err is the snappy corruption error, used by
// pbm/checkpoint to retry a mislabeled S2 blob.
func IsCorrupt(err error) bool {
	return errors.Is(err, snappy.ErrCorrupt)
}

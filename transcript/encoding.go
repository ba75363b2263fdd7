package transcript

import (
	"compress/gzip"
	"compress/zlib"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/cockroachdb/errors"
)

// ContentEncoding selects how a transcript file is compressed.
type ContentEncoding int

const (
	ContentEncodingGzip    ContentEncoding = 0
	ContentEncodingDeflate ContentEncoding = 1
	ContentEncodingBrotli  ContentEncoding = 2
	ContentEncodingPlain   ContentEncoding = 3
)

var (
	ErrUnknownContentEncoding = errors.New("[STDIORPC] unknown content encoding")
)

func (e ContentEncoding) String() string {
	switch e {
	case ContentEncodingGzip:
		return "gzip"
	case ContentEncodingDeflate:
		return "deflate"
	case ContentEncodingBrotli:
		return "br"
	case ContentEncodingPlain:
		return "plain"
	default:
		return "unknown"
	}
}

// EncodingForPath picks the encoding from the file extension:
// .gz gzip, .zz zlib, .br brotli, anything else plain.
func EncodingForPath(path string) ContentEncoding {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return ContentEncodingGzip
	case ".zz":
		return ContentEncodingDeflate
	case ".br":
		return ContentEncodingBrotli
	default:
		return ContentEncodingPlain
	}
}

var (
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(nil)
		},
	}
	zlibWriterPool = sync.Pool{
		New: func() interface{} {
			return zlib.NewWriter(nil)
		},
	}
	brotliWriterPool = sync.Pool{
		New: func() interface{} {
			return brotli.NewWriter(nil)
		},
	}
)

type resetWriteCloser interface {
	io.WriteCloser
	Reset(w io.Writer)
}

type pooledWriter struct {
	resetWriteCloser
	pool *sync.Pool
}

// Close flushes the compressed stream and returns the writer to its pool.
// It does not close the underlying writer.
func (w *pooledWriter) Close() error {
	err := w.resetWriteCloser.Close()
	w.Reset(nil)
	w.pool.Put(w.resetWriteCloser)
	return err
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w so that bytes written are compressed with enc.
// Close must be called to flush; it leaves w open.
func NewWriter(enc ContentEncoding, w io.Writer) (io.WriteCloser, error) {
	var pool *sync.Pool
	switch enc {
	case ContentEncodingGzip:
		pool = &gzipWriterPool
	case ContentEncodingDeflate:
		pool = &zlibWriterPool
	case ContentEncodingBrotli:
		pool = &brotliWriterPool
	case ContentEncodingPlain:
		return nopWriteCloser{w}, nil
	default:
		return nil, ErrUnknownContentEncoding
	}

	cw := pool.Get().(resetWriteCloser)
	cw.Reset(w)
	return &pooledWriter{resetWriteCloser: cw, pool: pool}, nil
}

// NewReader wraps r so that reads return the data decompressed with enc.
func NewReader(enc ContentEncoding, r io.Reader) (io.ReadCloser, error) {
	switch enc {
	case ContentEncodingGzip:
		return gzip.NewReader(r)
	case ContentEncodingDeflate:
		return zlib.NewReader(r)
	case ContentEncodingBrotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case ContentEncodingPlain:
		return io.NopCloser(r), nil
	default:
		return nil, ErrUnknownContentEncoding
	}
}

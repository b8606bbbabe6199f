// internal/browser/network/compression.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is the value advertised when the caller has not set one.
const AcceptEncoding = "br, gzip, deflate"

var (
	gzipPool   = sync.Pool{New: func() interface{} { return new(gzip.Reader) }}
	brotliPool = sync.Pool{New: func() interface{} { return brotli.NewReader(nil) }}
)

// decoder wraps src in a decompressing reader. release, when non-nil, returns
// pooled state once the body is closed.
type decoder func(src io.Reader) (rc io.ReadCloser, release func(), err error)

var decoders = map[string]decoder{
	"gzip":   decodeGzip,
	"x-gzip": decodeGzip,
	"deflate": func(src io.Reader) (io.ReadCloser, func(), error) {
		rc, err := decodeDeflate(src)
		return rc, nil, err
	},
	"br": decodeBrotli,
}

func decodeGzip(src io.Reader) (io.ReadCloser, func(), error) {
	zr := gzipPool.Get().(*gzip.Reader)
	if err := zr.Reset(src); err != nil {
		gzipPool.Put(zr)
		return nil, nil, err
	}
	return zr, func() {
		_ = zr.Reset(strings.NewReader(""))
		gzipPool.Put(zr)
	}, nil
}

func decodeBrotli(src io.Reader) (io.ReadCloser, func(), error) {
	br := brotliPool.Get().(*brotli.Reader)
	if err := br.Reset(src); err != nil {
		brotliPool.Put(br)
		return nil, nil, err
	}
	return io.NopCloser(br), func() {
		_ = br.Reset(strings.NewReader(""))
		brotliPool.Put(br)
	}, nil
}

// decodeDeflate accepts both zlib-wrapped and raw deflate streams; servers disagree
// on which one "deflate" means.
func decodeDeflate(src io.Reader) (io.ReadCloser, error) {
	buffered := bufio.NewReader(src)
	if hdr, err := buffered.Peek(2); err == nil && isZlibHeader(hdr) {
		return zlib.NewReader(buffered)
	}
	return flate.NewReader(buffered), nil
}

// isZlibHeader checks the CMF/FLG pair of RFC 1950.
func isZlibHeader(hdr []byte) bool {
	return hdr[0]&0x0f == 8 && (uint16(hdr[0])<<8|uint16(hdr[1]))%31 == 0
}

// CompressionMiddleware advertises compression support and transparently decodes
// the response body. Decoding ignores the declared Content-Length, which describes
// the encoded bytes and is often missing or wrong.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport, defaulting to http.DefaultTransport.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := DecompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

// decodedBody closes the decoder, the encoded body below it, and returns pooled readers.
type decodedBody struct {
	io.ReadCloser
	encoded io.ReadCloser
	release func()
}

func (b *decodedBody) Close() error {
	err := errors.Join(b.ReadCloser.Close(), b.encoded.Close())
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return err
}

// DecompressResponse replaces resp.Body with a decoded stream according to its
// Content-Encoding header. Layered encodings are undone in reverse order. On
// error the body may be partially consumed and should be discarded.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}

	var layers []string
	for _, value := range resp.Header.Values("Content-Encoding") {
		for _, token := range strings.Split(value, ",") {
			if token = strings.ToLower(strings.TrimSpace(token)); token != "" && token != "identity" {
				layers = append(layers, token)
			}
		}
	}
	if len(layers) == 0 {
		return nil
	}

	for i := len(layers) - 1; i >= 0; i-- {
		decode, ok := decoders[layers[i]]
		if !ok {
			return fmt.Errorf("unsupported Content-Encoding %q", layers[i])
		}
		rc, release, err := decode(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: %w", layers[i], err)
		}
		resp.Body = &decodedBody{ReadCloser: rc, encoded: resp.Body, release: release}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

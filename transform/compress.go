package transform

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"

	"github.com/golang/snappy"
)

// CompressType names which compression stage ran. Nothing in this
// module reads or writes it from a frame header; stages are chosen by
// building the Chain.
type CompressType int8

const (
	CompressNone   CompressType = iota
	CompressZlib
	CompressGzip
	CompressSnappy
)

// ZlibStage compresses with zlib on Encode, decompresses on Decode.
type ZlibStage struct{}

func NewZlibStage() *ZlibStage { return &ZlibStage{} }

func (s *ZlibStage) Name() string { return "zlib" }

func (s *ZlibStage) Encode(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *ZlibStage) Decode(payload []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// GzipStage compresses with gzip on Encode, decompresses on Decode.
type GzipStage struct{}

func NewGzipStage() *GzipStage { return &GzipStage{} }

func (s *GzipStage) Name() string { return "gzip" }

func (s *GzipStage) Encode(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *GzipStage) Decode(payload []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// SnappyStage compresses with Snappy on Encode, decompresses on Decode.
// Unlike zlib/gzip, Snappy needs no writer/reader lifecycle.
type SnappyStage struct{}

func NewSnappyStage() *SnappyStage { return &SnappyStage{} }

func (s *SnappyStage) Name() string { return "snappy" }

func (s *SnappyStage) Encode(payload []byte) ([]byte, error) {
	return snappy.Encode(nil, payload), nil
}

func (s *SnappyStage) Decode(payload []byte) ([]byte, error) {
	return snappy.Decode(nil, payload)
}

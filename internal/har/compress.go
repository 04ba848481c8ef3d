package har

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"
)

// Codec names a compression algorithm for stored documents
type Codec string

const (
	CodecNone   Codec = "none"
	CodecGzip   Codec = "gzip"
	CodecLZ4    Codec = "lz4"
	CodecSnappy Codec = "snappy"
)

// ErrDecompression is returned when a stored document cannot be decompressed.
var ErrDecompression = errors.New("decompression failed")

// ErrUnknownCodec is returned for codec names outside none, gzip, lz4 and snappy
var ErrUnknownCodec = errors.New("unknown codec")

// ParseCodec validates a codec name. Empty means CodecNone.
func ParseCodec(name string) (Codec, error) {
	switch c := Codec(name); c {
	case "":
		return CodecNone, nil
	case CodecNone, CodecGzip, CodecLZ4, CodecSnappy:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// Compress encodes data with the codec
func Compress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone, "":
		return data, nil

	case CodecGzip:
		var buf bytes.Buffer
		writer, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if err != nil {
			return nil, err
		}
		if _, err := writer.Write(data); err != nil {
			writer.Close()
			return nil, fmt.Errorf("gzip compression failed: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("gzip compression close failed: %w", err)
		}
		return buf.Bytes(), nil

	case CodecSnappy:
		return snappy.Encode(nil, data), nil

	case CodecLZ4:
		// Stream format embeds size information
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
}

// Decompress reverses Compress
func Decompress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone, "":
		return data, nil

	case CodecGzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", ErrDecompression, err)
		}
		defer reader.Close()
		out, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", ErrDecompression, err)
		}
		return out, nil

	case CodecSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy: %w", ErrDecompression, err)
		}
		return out, nil

	case CodecLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", ErrDecompression, err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
}

// Encode marshals the document to JSON and compresses it
func Encode(doc *HAR, codec Codec) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal HAR: %w", err)
	}
	return Compress(data, codec)
}

// Decode decompresses and unmarshals a stored document
func Decode(data []byte, codec Codec) (*HAR, error) {
	raw, err := Decompress(data, codec)
	if err != nil {
		return nil, err
	}
	var doc HAR
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal HAR: %w", err)
	}
	return &doc, nil
}

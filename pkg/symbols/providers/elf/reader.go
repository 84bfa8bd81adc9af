package elf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func newReaderAtCloser(data []byte) interface {
	io.ReadCloser
	io.ReaderAt
} {
	bytesReader := bytes.NewReader(data)
	return struct {
		io.ReadCloser
		io.ReaderAt
	}{
		ReadCloser: io.NopCloser(bytesReader),
		ReaderAt:   bytesReader,
	}
}

// decompress returns data unchanged unless it starts with a gzip or zstd
// magic number.
func decompress(data []byte) ([]byte, error) {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("decompress gzip data: %w", err)
		}
		return out, nil
	}

	if len(data) >= 4 && data[0] == 0x28 && data[1] == 0xb5 && data[2] == 0x2f && data[3] == 0xfd {
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("decompress zstd data: %w", err)
		}
		return out, nil
	}

	return data, nil
}

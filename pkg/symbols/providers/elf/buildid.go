package elf

import (
	"bytes"
	"debug/elf"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrNoBuildIDSection = errors.New("build ID section not found")

var goBuildIDSep = []byte("/")

// BuildID returns the GNU build ID of the file, or its Go build ID when the
// GNU note is missing.
func BuildID(f *elf.File) (string, error) {
	id, err := gnuBuildID(f)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNoBuildIDSection) {
		return "", err
	}
	return goBuildID(f)
}

func gnuBuildID(f *elf.File) (string, error) {
	s := f.Section(".note.gnu.build-id")
	if s == nil {
		return "", ErrNoBuildIDSection
	}
	data, err := s.Data()
	if err != nil {
		return "", fmt.Errorf("reading .note.gnu.build-id: %w", err)
	}
	if len(data) < 16 {
		return "", fmt.Errorf(".note.gnu.build-id is too small")
	}
	if !bytes.Equal([]byte("GNU"), data[12:15]) {
		return "", fmt.Errorf(".note.gnu.build-id is not a GNU build-id")
	}
	raw := data[16:]
	// 8 bytes is xxhash, used by Container-Optimized OS for example.
	if len(raw) != 20 && len(raw) != 8 {
		return "", fmt.Errorf(".note.gnu.build-id has wrong size %d", len(raw))
	}
	return hex.EncodeToString(raw), nil
}

func goBuildID(f *elf.File) (string, error) {
	s := f.Section(".note.go.buildid")
	if s == nil {
		return "", ErrNoBuildIDSection
	}
	data, err := s.Data()
	if err != nil {
		return "", fmt.Errorf("reading .note.go.buildid: %w", err)
	}
	if len(data) < 17 {
		return "", fmt.Errorf(".note.go.buildid is too small")
	}
	data = data[16 : len(data)-1]
	if len(data) < 40 || bytes.Count(data, goBuildIDSep) < 2 {
		return "", fmt.Errorf("wrong .note.go.buildid")
	}
	id := string(data)
	if id == "redacted" {
		return "", fmt.Errorf("redacted .note.go.buildid")
	}
	return id, nil
}

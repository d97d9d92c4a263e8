package sensitive

import (
	"fmt"
	"os"
)

// Input is an encoded image given either as a file path or as bytes.
// It is caller-owned; nothing retains it past a Detect call.
type Input struct {
	path string
	data []byte
}

// FromPath refers to an image file on disk.
func FromPath(path string) Input { return Input{path: path} }

// FromBytes refers to an in-memory encoded image.
func FromBytes(data []byte) Input { return Input{data: data} }

// Bytes resolves the input to raw bytes, reading the file for path inputs.
func (in Input) Bytes() ([]byte, error) {
	if in.data != nil {
		if len(in.data) == 0 {
			return nil, ErrEmptyInput
		}
		return in.data, nil
	}
	if in.path == "" {
		return nil, ErrEmptyInput
	}
	data, err := os.ReadFile(in.path)
	if err != nil {
		return nil, fmt.Errorf("sensitive: read input: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	return data, nil
}

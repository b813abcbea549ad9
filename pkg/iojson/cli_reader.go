package iojson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// FileReader reads JSON values of type T from a file flag or stdin. The
// input may be a single value, a JSON array, or newline-delimited values
// such as the output of WriteLine.
type FileReader[T any] struct {
	fileFlagValue string
	stdin         io.Reader
}

func (fr *FileReader[T]) Flag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "file",
		Aliases:     []string{"f"},
		Usage:       "path to JSON input, '-' for stdin",
		Destination: &fr.fileFlagValue,
	}
}

// SetInput replaces stdin as the source used for '-'.
func (fr *FileReader[T]) SetInput(r io.Reader) {
	fr.stdin = r
}

// IsSet reports whether the file flag was given.
func (fr *FileReader[T]) IsSet() bool {
	return fr.fileFlagValue != ""
}

// ReadAll decodes every value in the input.
func (fr *FileReader[T]) ReadAll() ([]T, error) {
	var reader io.Reader

	switch fr.fileFlagValue {
	case "", "-":
		reader = fr.stdin
		if reader == nil {
			reader = os.Stdin
		}
		if f, ok := reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return nil, fmt.Errorf("no input provided (stdin is a terminal); use -f flag or pipe JSON input")
		}
	default:
		f, err := os.Open(fr.fileFlagValue)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		defer func() { _ = f.Close() }()
		reader = f
	}

	return Decode[T](reader)
}

// Decode reads a single value, a JSON array, or a stream of values from r.
func Decode[T any](r io.Reader) ([]T, error) {
	dec := json.NewDecoder(r)

	var out []T
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}

		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
			var batch []T
			if err := json.Unmarshal(trimmed, &batch); err != nil {
				return nil, fmt.Errorf("decode JSON: %w", err)
			}
			out = append(out, batch...)
			continue
		}

		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
		out = append(out, v)
	}
}

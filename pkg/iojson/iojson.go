// Package iojson reads and writes JSON for command line output that other
// tools consume.
package iojson

import (
	"encoding/json"
	"fmt"
	"io"
)

// Write writes obj as indented JSON followed by a newline.
func Write(w io.Writer, obj any) error {
	bits, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	_, err = fmt.Fprintln(w, string(bits))
	return err
}

// WriteLine writes obj as a single compact JSON line, suitable for
// streaming output that other commands read back with Decode.
func WriteLine(w io.Writer, obj any) error {
	bits, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	bits = append(bits, '\n')
	_, err = w.Write(bits)
	return err
}

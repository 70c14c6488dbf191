package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// writeJSON prints v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// openInput returns the file named by path, or stdin when path is "" or "-".
func openInput(stdin io.Reader, path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open update file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

package lint

import (
	"encoding/json"
	"fmt"
	"io"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Write renders diags in the given format.
func Write(w io.Writer, format Format, diags []Diagnostic) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, diags)
	case FormatText, "":
		return WriteText(w, diags)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteText writes one line per diagnostic.
func WriteText(w io.Writer, diags []Diagnostic) error {
	for _, d := range diags {
		if _, err := fmt.Fprintln(w, d.String()); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes diags as an indented JSON array. An empty input is
// written as [] rather than null.
func WriteJSON(w io.Writer, diags []Diagnostic) error {
	if diags == nil {
		diags = []Diagnostic{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(diags)
}

package output

import (
	"bytes"
	"encoding/json"
)

// JSONFormatter formats the whole report as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// JSONLFormatter formats output as newline-delimited JSON. Exports and
// history entries are written one per line; stats are a single line.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)

	switch {
	case r.Stats != nil:
		return encoder.Encode(r.Stats)
	case r.Exports != nil:
		for _, a := range r.Exports.Assets {
			if err := encoder.Encode(a); err != nil {
				return err
			}
		}
	default:
		for _, e := range r.History {
			if err := encoder.Encode(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	Register("json", func() Formatter { return &JSONFormatter{} })
	Register("jsonl", func() Formatter { return &JSONLFormatter{} })
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*JSONLFormatter)(nil)
)

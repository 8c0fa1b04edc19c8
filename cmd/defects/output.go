package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// outputJSON writes v as pretty-printed JSON.
func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// outputJSONError writes err as {"error": "..."}.
func outputJSONError(w io.Writer, err error) {
	_ = outputJSON(w, map[string]string{"error": err.Error()})
}

package report

import (
	"encoding/json"
	"os"
)

// WriteJSON writes r to path as indented JSON.
func WriteJSON(path string, r Report) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

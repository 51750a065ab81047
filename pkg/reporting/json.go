package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// WriteSessionJSON writes the report as indented JSON, creating the
// directory if needed.
func WriteSessionJSON(rep *SessionReport, path string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

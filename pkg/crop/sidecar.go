package crop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteSidecar writes the crop window to a JSON sidecar file, creating
// parent directories as needed.
func WriteSidecar(path string, w Window) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create sidecar directory: %w", err)
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal crop window: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write crop sidecar: %w", err)
	}
	return nil
}

// ReadSidecar reads a crop window from a JSON sidecar file.
func ReadSidecar(path string) (Window, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Window{}, fmt.Errorf("failed to read crop sidecar: %w", err)
	}

	var w Window
	if err := json.Unmarshal(data, &w); err != nil {
		return Window{}, fmt.Errorf("failed to parse crop sidecar: %w", err)
	}
	return w, nil
}

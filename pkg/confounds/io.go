package confounds

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/SpinePrep/SpinePrep/internal/models"
)

// motionColumns is the required header of a motion parameter TSV, in
// order: translations in mm, rotations in radians.
var motionColumns = []string{"trans_x", "trans_y", "trans_z", "rot_x", "rot_y", "rot_z"}

// ReadMotionTSV reads a motion parameter TSV produced by the motion
// correction step. The file must carry at least the six canonical
// columns; extra columns are ignored.
func ReadMotionTSV(path string) (*models.MotionParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open motion parameters file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("motion parameters file %s is empty", path)
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")

	colIdx := make([]int, len(motionColumns))
	for i, want := range motionColumns {
		colIdx[i] = -1
		for j, got := range header {
			if got == want {
				colIdx[i] = j
				break
			}
		}
		if colIdx[i] < 0 {
			return nil, fmt.Errorf("motion parameters file %s is missing column %q", path, want)
		}
	}

	var data []float64
	var nRows int
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		for _, j := range colIdx {
			if j >= len(fields) {
				return nil, fmt.Errorf("motion parameters file %s: row %d has %d fields, want at least %d",
					path, nRows+1, len(fields), j+1)
			}
			v, err := strconv.ParseFloat(fields[j], 64)
			if err != nil {
				return nil, fmt.Errorf("motion parameters file %s: row %d: %w", path, nRows+1, err)
			}
			data = append(data, v)
		}
		nRows++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read motion parameters: %w", err)
	}

	return models.NewMotionParams(data, nRows)
}

// SidecarMeta is the JSON sidecar content written next to a confounds
// TSV: schema identification plus free-form per-column metadata.
type SidecarMeta struct {
	SchemaVersion string         `json:"SpinePrepSchemaVersion"`
	SoftwareName  string         `json:"SoftwareName"`
	Columns       map[string]any `json:"Columns,omitempty"`
	Parameters    map[string]any `json:"Parameters,omitempty"`
	Notes         []string       `json:"Notes,omitempty"`
}

// DefaultSidecarMeta builds the sidecar metadata for a standard confounds
// table, recording the methods and thresholds that produced it.
func DefaultSidecarMeta(radiusMM, spikeFDThr, spikeDVARSZ float64) SidecarMeta {
	return SidecarMeta{
		SchemaVersion: "1.0",
		SoftwareName:  "SpinePrep",
		Columns: map[string]any{
			"fd": map[string]any{
				"LongName": "Framewise Displacement",
				"Units":    "mm",
				"Method":   "Power et al. (2012): sum of absolute translation deltas + radius * sum of absolute rotation deltas",
			},
			"dvars": map[string]any{
				"LongName": "DVARS",
				"Units":    "arbitrary",
				"Method":   "sqrt(mean(voxelwise squared temporal differences)) within mask",
			},
			"spike": map[string]any{
				"LongName": "Motion spike flag",
				"Method":   "FD >= threshold OR |DVARS z-score| >= threshold",
			},
		},
		Parameters: map[string]any{
			"FDRadiusMM":  radiusMM,
			"SpikeFDThr":  spikeFDThr,
			"SpikeDVARSZ": spikeDVARSZ,
		},
	}
}

// WriteSidecarJSON writes the sidecar metadata as indented JSON, creating
// parent directories as needed.
func WriteSidecarJSON(path string, meta SidecarMeta) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create sidecar directory: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar metadata: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sidecar JSON: %w", err)
	}
	return nil
}

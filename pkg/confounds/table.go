// Package confounds assembles the per-run confound table from the motion,
// compcor, censor and crop engines and persists it as a TSV with a JSON
// sidecar. The column order written here is a contract: downstream
// consumers rely on it, and component columns are emitted in the same
// order as their variance-explained values.
package confounds

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SpinePrep/SpinePrep/internal/models"
)

// column is a single named confound series. Integer columns (spike and
// censor flags) are formatted without a decimal point.
type column struct {
	name   string
	values []float64
	isInt  bool
}

// Table is an ordered collection of equal-length confound columns.
type Table struct {
	nRows int
	cols  []column
}

// NewTable creates an empty table expecting nRows values per column.
func NewTable(nRows int) *Table {
	return &Table{nRows: nRows}
}

// NRows returns the number of timepoints in the table.
func (t *Table) NRows() int { return t.nRows }

// ColumnNames returns the column names in write order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.name
	}
	return names
}

// AddFloat appends a float column. The length must match the table.
func (t *Table) AddFloat(name string, values []float64) error {
	return t.add(name, values, false)
}

// AddInt appends an integer flag column. The length must match the table.
func (t *Table) AddInt(name string, values []int) error {
	floats := make([]float64, len(values))
	for i, v := range values {
		floats[i] = float64(v)
	}
	return t.add(name, floats, true)
}

// AddComponents appends component columns named prefix01..prefixNN, one
// per retained component, preserving the component order.
func (t *Table) AddComponents(prefix string, comps *models.Components) error {
	for k := 0; k < comps.K; k++ {
		name := fmt.Sprintf("%s%02d", prefix, k+1)
		if err := t.add(name, comps.Column(k), false); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) add(name string, values []float64, isInt bool) error {
	if len(values) != t.nRows {
		return fmt.Errorf("%w: column %q has %d rows, table has %d",
			models.ErrShapeMismatch, name, len(values), t.nRows)
	}
	for _, c := range t.cols {
		if c.name == name {
			return fmt.Errorf("duplicate confound column %q", name)
		}
	}
	t.cols = append(t.cols, column{name: name, values: values, isInt: isInt})
	return nil
}

// WriteTSV writes the table as a tab-separated file with a header row,
// floats formatted with six decimal places, creating parent directories
// as needed.
func (t *Table) WriteTSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var b strings.Builder
	b.WriteString(strings.Join(t.ColumnNames(), "\t"))
	b.WriteByte('\n')

	for row := 0; row < t.nRows; row++ {
		for i, c := range t.cols {
			if i > 0 {
				b.WriteByte('\t')
			}
			if c.isInt {
				fmt.Fprintf(&b, "%d", int(c.values[row]))
			} else {
				fmt.Fprintf(&b, "%.6f", c.values[row])
			}
		}
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write confounds TSV: %w", err)
	}
	return nil
}

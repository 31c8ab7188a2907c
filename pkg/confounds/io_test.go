package confounds

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeTempTSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motion.tsv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp TSV: %v", err)
	}
	return path
}

func TestReadMotionTSV(t *testing.T) {
	path := writeTempTSV(t, "trans_x\ttrans_y\ttrans_z\trot_x\trot_y\trot_z\n"+
		"0.1\t0.2\t0.3\t0.001\t0.002\t0.003\n"+
		"0.4\t0.5\t0.6\t0.004\t0.005\t0.006\n")

	mp, err := ReadMotionTSV(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if mp.T != 2 {
		t.Fatalf("T = %d, want 2", mp.T)
	}
	if math.Abs(mp.At(0, 0)-0.1) > 1e-12 {
		t.Errorf("At(0,0) = %g, want 0.1", mp.At(0, 0))
	}
	if math.Abs(mp.At(1, 5)-0.006) > 1e-12 {
		t.Errorf("At(1,5) = %g, want 0.006", mp.At(1, 5))
	}
}

func TestReadMotionTSVReordersByHeader(t *testing.T) {
	// Columns out of canonical order, with an extra column that must be
	// ignored.
	path := writeTempTSV(t, "rot_z\ttrans_x\textra\ttrans_y\ttrans_z\trot_x\trot_y\n"+
		"0.9\t0.1\t77\t0.2\t0.3\t0.4\t0.5\n")

	mp, err := ReadMotionTSV(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	want := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.9}
	for c, w := range want {
		if math.Abs(mp.At(0, c)-w) > 1e-12 {
			t.Errorf("At(0,%d) = %g, want %g", c, mp.At(0, c), w)
		}
	}
}

func TestReadMotionTSVErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing column", "trans_x\ttrans_y\ttrans_z\trot_x\trot_y\n0\t0\t0\t0\t0\n"},
		{"non numeric", "trans_x\ttrans_y\ttrans_z\trot_x\trot_y\trot_z\n0\t0\tabc\t0\t0\t0\n"},
		{"short row", "trans_x\ttrans_y\ttrans_z\trot_x\trot_y\trot_z\n0\t0\t0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempTSV(t, tc.content)
			if _, err := ReadMotionTSV(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReadMotionTSVSkipsBlankLines(t *testing.T) {
	path := writeTempTSV(t, "trans_x\ttrans_y\ttrans_z\trot_x\trot_y\trot_z\n"+
		"0\t0\t0\t0\t0\t0\n"+
		"\n"+
		"1\t1\t1\t0\t0\t0\n")

	mp, err := ReadMotionTSV(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if mp.T != 2 {
		t.Errorf("T = %d, want 2 with blank line skipped", mp.T)
	}
}

func TestWriteSidecarJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "confounds.json")
	meta := DefaultSidecarMeta(50.0, 0.5, 2.5)

	if err := WriteSidecarJSON(path, meta); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	var got SidecarMeta
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("sidecar is not valid JSON: %v", err)
	}
	if got.SchemaVersion != "1.0" {
		t.Errorf("SchemaVersion = %q, want %q", got.SchemaVersion, "1.0")
	}
	if got.Parameters["FDRadiusMM"] != 50.0 {
		t.Errorf("FDRadiusMM = %v, want 50", got.Parameters["FDRadiusMM"])
	}
	if _, ok := got.Columns["fd"]; !ok {
		t.Error("sidecar is missing the fd column description")
	}
}

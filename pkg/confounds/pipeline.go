package confounds

import (
	"fmt"

	"github.com/SpinePrep/SpinePrep/internal/models"
	"github.com/SpinePrep/SpinePrep/pkg/censor"
	"github.com/SpinePrep/SpinePrep/pkg/compcor"
	"github.com/SpinePrep/SpinePrep/pkg/config"
	"github.com/SpinePrep/SpinePrep/pkg/crop"
	"github.com/SpinePrep/SpinePrep/pkg/motion"
)

// Params holds the inputs for one functional run. Motion parameters are
// required; the 4D volume and masks are optional and enable DVARS,
// CompCor and crop detection when present. File loading (NIfTI, BIDS
// discovery) is the caller's concern; this engine only sees arrays.
type Params struct {
	// Motion is the T x 6 motion parameter matrix
	Motion *models.MotionParams

	// Volume is the 4D functional data; nil disables DVARS, CompCor and
	// crop detection
	Volume *models.Volume4D

	// TissueMask selects the noise tissue (WM+CSF) voxels for aCompCor
	TissueMask *models.Mask3D

	// SearchMask bounds the tCompCor high-variance voxel search; nil
	// disables tCompCor
	SearchMask *models.Mask3D

	// CordMask selects the cord ROI whose mean signal drives crop
	// detection; nil falls back to the global mean
	CordMask *models.Mask3D

	// Config supplies thresholds; nil uses defaults
	Config *config.Config

	// Verbose enables per-step progress output
	Verbose bool
}

// Result collects everything the engine computes for one run.
type Result struct {
	FD    []float64
	DVARS []float64
	Spike []int

	CensorFD    []int
	CensorDVARS []int
	Censor      *models.CensorResult

	Crop crop.Window

	AComponents   *models.Components
	AVarExplained []float64
	TComponents   *models.Components
	TVarExplained []float64

	// Table is the assembled confound table in canonical column order
	Table *Table
}

// Processor runs the confound pipeline for a single functional run.
type Processor struct {
	params *Params
	cfg    *config.Config
}

// NewProcessor creates a processor for the given run inputs.
func NewProcessor(params *Params) *Processor {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Processor{params: params, cfg: cfg}
}

// Process runs the complete confound pipeline:
//
//  1. FD from the motion parameters
//  2. DVARS from the 4D volume (zeros when no volume is supplied)
//  3. spike flags from FD and the DVARS z-score
//  4. censor columns and the padded/contiguity-filtered censor vector
//  5. temporal crop window from the cord-ROI (or global) mean signal
//  6. aCompCor components over the tissue mask
//  7. tCompCor components over the high-variance voxel selection
//  8. table assembly in canonical column order
func (p *Processor) Process() (*Result, error) {
	mp := p.params.Motion
	if mp == nil {
		return nil, fmt.Errorf("confounds: motion parameters are required")
	}
	vol := p.params.Volume
	if vol != nil && vol.NT != mp.T {
		return nil, fmt.Errorf("%w: volume has %d timepoints, motion has %d",
			models.ErrShapeMismatch, vol.NT, mp.T)
	}

	res := &Result{}

	p.logf("Step 1: Computing framewise displacement...")
	res.FD = motion.ComputeFD(mp, p.cfg.Motion.RadiusMM)

	p.logf("Step 2: Computing DVARS...")
	var err error
	if vol != nil {
		res.DVARS, err = motion.ComputeDVARS(vol, p.params.TissueMask)
		if err != nil {
			return nil, fmt.Errorf("failed to compute DVARS: %w", err)
		}
	} else {
		res.DVARS = make([]float64, mp.T)
	}

	p.logf("Step 3: Detecting motion spikes...")
	res.Spike = motion.DetectSpikes(res.FD, res.DVARS, p.cfg.Motion.SpikeFDThr, p.cfg.Motion.SpikeDVARSZ)

	p.logf("Step 4: Building censor vector...")
	res.CensorFD, res.CensorDVARS, _, err = censor.Columns(res.FD, res.DVARS,
		p.cfg.Censor.FDThreshMM, p.cfg.Censor.DVARSThresh)
	if err != nil {
		return nil, fmt.Errorf("failed to build censor columns: %w", err)
	}
	res.Censor, err = censor.Build(res.FD, res.DVARS, censor.Thresholds{
		FDThreshMM:    p.cfg.Censor.FDThreshMM,
		DVARSThresh:   p.cfg.Censor.DVARSThresh,
		MinContigVols: p.cfg.Censor.MinContigVols,
		PadVols:       p.cfg.Censor.PadVols,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build censor vector: %w", err)
	}

	p.logf("Step 5: Detecting temporal crop window...")
	res.Crop, err = p.detectCrop(vol)
	if err != nil {
		return nil, fmt.Errorf("crop detection failed: %w", err)
	}

	if vol != nil && p.params.TissueMask != nil {
		p.logf("Step 6: Extracting aCompCor components...")
		res.AComponents, res.AVarExplained, err = p.fitCompCor(vol, p.params.TissueMask)
		if err != nil {
			return nil, fmt.Errorf("aCompCor failed: %w", err)
		}
	}

	if vol != nil && p.params.SearchMask != nil {
		p.logf("Step 7: Extracting tCompCor components...")
		tMask, err := compcor.SelectHighVarianceVoxels(vol, p.params.SearchMask, p.cfg.CompCor.TopKPercent)
		if err != nil {
			return nil, fmt.Errorf("tCompCor voxel selection failed: %w", err)
		}
		res.TComponents, res.TVarExplained, err = p.fitCompCor(vol, tMask)
		if err != nil {
			return nil, fmt.Errorf("tCompCor failed: %w", err)
		}
	}

	p.logf("Step 8: Assembling confound table...")
	res.Table, err = p.assemble(res)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble confound table: %w", err)
	}

	p.logf("Censored %d/%d frames, crop window [%d, %d)", res.Censor.NCensored, mp.T, res.Crop.From, res.Crop.To)
	return res, nil
}

func (p *Processor) fitCompCor(vol *models.Volume4D, mask *models.Mask3D) (*models.Components, []float64, error) {
	ts, err := compcor.ExtractTimeseries(vol, mask, true)
	if err != nil {
		return nil, nil, err
	}
	return compcor.FitPCA(ts, p.cfg.CompCor.NComponents)
}

// detectCrop builds the per-volume summary signal (cord-ROI mean when a
// cord mask is present, global mean otherwise) and runs the crop
// detector. Without volume data the full range is passed through,
// tagged no_data when detection is enabled and disabled when it is not.
func (p *Processor) detectCrop(vol *models.Volume4D) (crop.Window, error) {
	opts := crop.Options{
		Enable:       p.cfg.Crop.Enable,
		ZThresh:      p.cfg.Crop.ZThresh,
		MaxTrimStart: p.cfg.Crop.MaxTrimStart,
		MaxTrimEnd:   p.cfg.Crop.MaxTrimEnd,
	}

	if vol == nil {
		t := p.params.Motion.T
		reason := crop.ReasonNoData
		if !opts.Enable {
			reason = crop.ReasonDisabled
		}
		return crop.Window{From: 0, To: t, NVols: t, Reason: reason}, nil
	}

	signal, err := MeanSignal(vol, p.params.CordMask)
	if err != nil {
		return crop.Window{}, err
	}
	return crop.Detect(signal, opts), nil
}

// assemble builds the canonical confound table: motion parameters, fd,
// dvars, spike, censor columns, then component columns. Component column
// order matches the variance-explained vectors by construction.
func (p *Processor) assemble(res *Result) (*Table, error) {
	mp := p.params.Motion
	table := NewTable(mp.T)

	for c, name := range motionColumns {
		col := make([]float64, mp.T)
		for t := 0; t < mp.T; t++ {
			col[t] = mp.At(t, c)
		}
		if err := table.AddFloat(name, col); err != nil {
			return nil, err
		}
	}

	if err := table.AddFloat("fd", res.FD); err != nil {
		return nil, err
	}
	if err := table.AddFloat("dvars", res.DVARS); err != nil {
		return nil, err
	}
	if err := table.AddInt("spike", res.Spike); err != nil {
		return nil, err
	}
	if err := table.AddInt("censor_fd", res.CensorFD); err != nil {
		return nil, err
	}
	if err := table.AddInt("censor_dvars", res.CensorDVARS); err != nil {
		return nil, err
	}
	if err := table.AddInt("censor", res.Censor.Censor); err != nil {
		return nil, err
	}

	if res.AComponents != nil {
		if err := table.AddComponents("acompcor", res.AComponents); err != nil {
			return nil, err
		}
	}
	if res.TComponents != nil {
		if err := table.AddComponents("tcompcor", res.TComponents); err != nil {
			return nil, err
		}
	}

	return table, nil
}

func (p *Processor) logf(format string, args ...any) {
	if p.params.Verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// MeanSignal computes the per-volume mean signal, restricted to the mask
// when one is given. A mask whose spatial grid differs from the volume's
// is a shape-mismatch error; a mask selecting no voxels yields zeros.
func MeanSignal(vol *models.Volume4D, mask *models.Mask3D) ([]float64, error) {
	if mask != nil && !mask.Matches(vol) {
		return nil, fmt.Errorf("%w: mask grid %dx%dx%d vs volume %dx%dx%d",
			models.ErrShapeMismatch, mask.NX, mask.NY, mask.NZ, vol.NX, vol.NY, vol.NZ)
	}

	signal := make([]float64, vol.NT)
	nVox := vol.VoxelsPerVolume()
	if nVox == 0 {
		return signal, nil
	}

	for t := 0; t < vol.NT; t++ {
		volume := vol.VolumeAt(t)
		var sum float64
		var n int
		if mask != nil {
			for i, in := range mask.Data {
				if in {
					sum += volume[i]
					n++
				}
			}
		} else {
			for _, v := range volume {
				sum += v
			}
			n = nVox
		}
		if n > 0 {
			signal[t] = sum / float64(n)
		}
	}

	return signal, nil
}

package models

import (
	"fmt"
)

// Volume4D represents a 4D functional acquisition (X, Y, Z, T) as a flat
// array in volume-major order: a full 3D volume for timepoint 0, then the
// volume for timepoint 1, and so on. Within a volume the layout is
// z*NX*NY + y*NX + x, matching the slice layout used elsewhere in the
// pipeline.
type Volume4D struct {
	// Data is the voxel data as a 1D array in volume-major order
	Data []float64

	// NX, NY, NZ are the spatial dimensions in voxels
	NX, NY, NZ int

	// NT is the number of timepoints (volumes)
	NT int
}

// NewVolume4D wraps a flat data array with its dimensions.
// The data length must equal NX*NY*NZ*NT.
func NewVolume4D(data []float64, nx, ny, nz, nt int) (*Volume4D, error) {
	if nx < 0 || ny < 0 || nz < 0 || nt < 0 {
		return nil, fmt.Errorf("volume dimensions must be non-negative, got (%d, %d, %d, %d)", nx, ny, nz, nt)
	}
	if len(data) != nx*ny*nz*nt {
		return nil, fmt.Errorf("volume data length %d does not match dimensions %dx%dx%dx%d", len(data), nx, ny, nz, nt)
	}
	return &Volume4D{Data: data, NX: nx, NY: ny, NZ: nz, NT: nt}, nil
}

// VoxelsPerVolume returns the number of voxels in a single 3D volume.
func (v *Volume4D) VoxelsPerVolume() int {
	return v.NX * v.NY * v.NZ
}

// At returns the value at spatial coordinates (x, y, z) and timepoint t.
func (v *Volume4D) At(x, y, z, t int) float64 {
	return v.Data[t*v.NX*v.NY*v.NZ+z*v.NX*v.NY+y*v.NX+x]
}

// VolumeAt returns the flat 3D volume for timepoint t as a sub-slice of
// the underlying data (no copy).
func (v *Volume4D) VolumeAt(t int) []float64 {
	n := v.VoxelsPerVolume()
	return v.Data[t*n : (t+1)*n]
}

// MotionColumns is the number of rigid-body motion parameters per
// timepoint: three translations in mm followed by three rotations in
// radians.
const MotionColumns = 6

// MotionParams holds a T x 6 motion parameter matrix in row-major order
// with columns trans_x, trans_y, trans_z, rot_x, rot_y, rot_z, ordered by
// acquisition time.
type MotionParams struct {
	// Data is the matrix data, row-major
	Data []float64

	// T is the number of timepoints (rows)
	T int
}

// NewMotionParams wraps a flat row-major array of T rows of 6 values.
func NewMotionParams(data []float64, t int) (*MotionParams, error) {
	if len(data) != t*MotionColumns {
		return nil, fmt.Errorf("motion data length %d does not match %d timepoints of %d parameters", len(data), t, MotionColumns)
	}
	return &MotionParams{Data: data, T: t}, nil
}

// At returns the motion parameter in column c at timepoint t.
func (m *MotionParams) At(t, c int) float64 {
	return m.Data[t*MotionColumns+c]
}

// Row returns the 6 motion parameters at timepoint t (no copy).
func (m *MotionParams) Row(t int) []float64 {
	return m.Data[t*MotionColumns : (t+1)*MotionColumns]
}

// Mask3D is a boolean voxel mask over a 3D grid, stored flat in the same
// z*NX*NY + y*NX + x order as a single Volume4D timepoint.
type Mask3D struct {
	// Data marks included voxels as true
	Data []bool

	// NX, NY, NZ are the spatial dimensions in voxels
	NX, NY, NZ int
}

// NewMask3D wraps a flat boolean array with its dimensions.
func NewMask3D(data []bool, nx, ny, nz int) (*Mask3D, error) {
	if len(data) != nx*ny*nz {
		return nil, fmt.Errorf("mask data length %d does not match dimensions %dx%dx%d", len(data), nx, ny, nz)
	}
	return &Mask3D{Data: data, NX: nx, NY: ny, NZ: nz}, nil
}

// Count returns the number of voxels included by the mask.
func (m *Mask3D) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Matches reports whether the mask's spatial grid matches the volume's.
func (m *Mask3D) Matches(v *Volume4D) bool {
	return m.NX == v.NX && m.NY == v.NY && m.NZ == v.NZ
}

// Timeseries holds voxel timecourses extracted through a mask as a dense
// T x V matrix in row-major order (one row per timepoint).
type Timeseries struct {
	// Data is the matrix data, row-major
	Data []float64

	// T is the number of timepoints (rows)
	T int

	// V is the number of voxels (columns)
	V int
}

// At returns the value for timepoint t and voxel column v.
func (ts *Timeseries) At(t, v int) float64 {
	return ts.Data[t*ts.V+v]
}

// Components holds temporal principal components as a dense T x K matrix
// in row-major order, ordered by descending singular value.
type Components struct {
	// Data is the matrix data, row-major
	Data []float64

	// T is the number of timepoints (rows)
	T int

	// K is the number of retained components (columns)
	K int
}

// At returns component k's value at timepoint t.
func (c *Components) At(t, k int) float64 {
	return c.Data[t*c.K+k]
}

// Column returns a copy of component k's timecourse.
func (c *Components) Column(k int) []float64 {
	col := make([]float64, c.T)
	for t := 0; t < c.T; t++ {
		col[t] = c.Data[t*c.K+k]
	}
	return col
}

// Segment is a half-open [Start, End) index range of kept timepoints.
type Segment struct {
	Start int
	End   int
}

// Len returns the number of timepoints in the segment.
func (s Segment) Len() int {
	return s.End - s.Start
}

// CensorResult describes the outcome of threshold-based frame censoring.
// NKept + NCensored always equals the length of Censor, and KeptSegments
// exactly partition the indices where Censor is 0, in ascending order.
type CensorResult struct {
	// Censor marks censored frames with 1 and kept frames with 0
	Censor []int

	// KeepMask is true for kept frames (the complement of Censor)
	KeepMask []bool

	// KeptSegments lists maximal runs of kept frames as half-open ranges
	KeptSegments []Segment

	// NKept and NCensored are the frame counts on each side
	NKept     int
	NCensored int
}

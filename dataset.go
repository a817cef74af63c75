package kfn

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Dataset is a column-oriented point matrix: a dims × n mat.Dense where
// column j holds the coordinates of point j. Reference and query sets use
// the same representation.
type Dataset struct {
	m *mat.Dense
}

// NewDataset returns a zero-filled dataset of n points in dims dimensions.
func NewDataset(dims, n int) *Dataset {
	return &Dataset{m: mat.NewDense(dims, n, nil)}
}

// DatasetFromMatrix wraps an existing dims × n matrix without copying.
func DatasetFromMatrix(m *mat.Dense) *Dataset {
	return &Dataset{m: m}
}

// DatasetFromPoints builds a dataset from one slice per point. All points
// must have the same length.
func DatasetFromPoints(points [][]float64) (*Dataset, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("kfn: dataset needs at least one point")
	}
	dims := len(points[0])
	d := NewDataset(dims, len(points))
	for j, p := range points {
		if len(p) != dims {
			return nil, fmt.Errorf("kfn: point %d has %d dimensions, want %d", j, len(p), dims)
		}
		d.m.SetCol(j, p)
	}
	return d, nil
}

// RandomDataset returns n points in dims dimensions with coordinates drawn
// uniformly from [0, 1) using the given source.
func RandomDataset(dims, n int, rng *rand.Rand) *Dataset {
	d := NewDataset(dims, n)
	for j := 0; j < n; j++ {
		for i := 0; i < dims; i++ {
			d.m.Set(i, j, rng.Float64())
		}
	}
	return d
}

// Dims returns the dimensionality of each point.
func (d *Dataset) Dims() int {
	r, _ := d.m.Dims()
	return r
}

// Len returns the number of points.
func (d *Dataset) Len() int {
	_, c := d.m.Dims()
	return c
}

// At returns coordinate i of point j.
func (d *Dataset) At(i, j int) float64 { return d.m.At(i, j) }

// Point copies point j into dst (allocated when nil) and returns it.
func (d *Dataset) Point(j int, dst []float64) []float64 {
	return mat.Col(dst, j, d.m)
}

// Matrix exposes the backing dims × n matrix.
func (d *Dataset) Matrix() *mat.Dense { return d.m }

// flatPoints returns the points in flat row-major layout (point-major:
// n rows of dims values), the layout the spatial trees operate on.
func (d *Dataset) flatPoints() []float64 {
	dims, n := d.m.Dims()
	out := make([]float64, n*dims)
	for j := 0; j < n; j++ {
		for i := 0; i < dims; i++ {
			out[j*dims+i] = d.m.At(i, j)
		}
	}
	return out
}

// datasetFromFlat is the inverse of flatPoints.
func datasetFromFlat(flat []float64, n, dims int) *Dataset {
	d := NewDataset(dims, n)
	for j := 0; j < n; j++ {
		d.m.SetCol(j, flat[j*dims:(j+1)*dims])
	}
	return d
}

// LoadDatasetCSV reads a dataset from CSV with one point per record.
// Every record must have the same number of fields.
func LoadDatasetCSV(r io.Reader) (*Dataset, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("kfn: reading dataset: %w", err)
	}
	points := make([][]float64, len(records))
	for i, rec := range records {
		p := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("kfn: dataset row %d field %d: %w", i, j, err)
			}
			p[j] = v
		}
		points[i] = p
	}
	return DatasetFromPoints(points)
}

// WriteCSV writes the dataset with one point per record, mirroring
// LoadDatasetCSV.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	dims, n := d.m.Dims()
	rec := make([]string, dims)
	for j := 0; j < n; j++ {
		for i := 0; i < dims; i++ {
			rec[i] = strconv.FormatFloat(d.m.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("kfn: writing dataset: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

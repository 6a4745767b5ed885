// Package fit estimates the seasonal baseline of a pixel: ordinary least
// squares over a harmonic design matrix, followed by the RMSE calibration
// that later scales the anomaly threshold.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingularMatrix is returned when the normal-equations matrix has a
	// pivot below tolerance during inversion.
	ErrSingularMatrix = errors.New("singular matrix")

	// ErrInsufficientObservations is returned when there are fewer usable
	// observations than model coefficients.
	ErrInsufficientObservations = errors.New("insufficient observations")

	// ErrDimensionMismatch is returned when the target vector length does not
	// match the number of design matrix rows.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// PivotTolerance is the smallest pivot accepted during Gauss-Jordan
// elimination, relative to the largest absolute entry of the input.
const PivotTolerance = 1e-10

// Solve returns the least squares coefficients beta = (XᵗX)⁻¹ Xᵗy.
// Neither x nor y is modified.
func Solve(x mat.Matrix, y []float64) ([]float64, error) {
	rows, cols := x.Dims()
	if rows < cols {
		return nil, fmt.Errorf("%w: %d observations for %d coefficients", ErrInsufficientObservations, rows, cols)
	}
	if len(y) != rows {
		return nil, fmt.Errorf("%w: %d targets for %d rows", ErrDimensionMismatch, len(y), rows)
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)

	target := mat.NewVecDense(rows, append([]float64(nil), y...))
	var xty mat.VecDense
	xty.MulVec(x.T(), target)

	inv, err := Invert(&xtx)
	if err != nil {
		return nil, err
	}

	var beta mat.VecDense
	beta.MulVec(inv, &xty)

	out := make([]float64, cols)
	for i := range out {
		out[i] = beta.AtVec(i)
	}
	return out, nil
}

// Invert computes the inverse of a square matrix by Gauss-Jordan elimination
// with partial pivoting. It works on a private augmented copy, so a is left
// untouched. A pivot whose magnitude falls below PivotTolerance times the
// largest input entry aborts with ErrSingularMatrix.
func Invert(a mat.Matrix) (*mat.Dense, error) {
	n, m := a.Dims()
	if n != m {
		return nil, fmt.Errorf("%w: cannot invert a %dx%d matrix", ErrDimensionMismatch, n, m)
	}

	// aug = [A | I]
	aug := make([][]float64, n)
	scale := 0.0
	for i := 0; i < n; i++ {
		aug[i] = make([]float64, 2*n)
		for j := 0; j < n; j++ {
			v := a.At(i, j)
			aug[i][j] = v
			scale = math.Max(scale, math.Abs(v))
		}
		aug[i][n+i] = 1
	}
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("%w: matrix has no finite non-zero entries", ErrSingularMatrix)
	}
	tol := PivotTolerance * scale

	for col := 0; col < n; col++ {
		// Partial pivoting: bring the largest remaining entry into place.
		pivotRow := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivotRow][col]) {
				pivotRow = r
			}
		}
		pivot := aug[pivotRow][col]
		if !(math.Abs(pivot) >= tol) {
			return nil, fmt.Errorf("%w: pivot %.3g in column %d below tolerance %.3g", ErrSingularMatrix, pivot, col, tol)
		}
		aug[col], aug[pivotRow] = aug[pivotRow], aug[col]

		row := aug[col]
		for j := range row {
			row[j] /= pivot
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for j := range aug[r] {
				aug[r][j] -= factor * row[j]
			}
		}
	}

	inv := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		inv.SetRow(i, aug[i][n:])
	}
	return inv, nil
}

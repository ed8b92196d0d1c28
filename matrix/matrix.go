package matrix

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Uncorrelate zeroes every covariance between the states [idx, idx+dof) and
// the rest of the state vector, including the block interior, and sets the
// block diagonal to variance.
// It panics if p is not square or the range is out of bounds.
func Uncorrelate(p *mat.Dense, idx, dof int, variance float64) {
	n, _ := p.Dims()

	for i := idx; i < idx+dof; i++ {
		for j := 0; j < n; j++ {
			p.Set(i, j, 0)
			p.Set(j, i, 0)
		}
	}

	for i := idx; i < idx+dof; i++ {
		p.Set(i, i, variance)
	}
}

// UncorrelateVariances is Uncorrelate with a per-state diagonal.
// It panics if len(variances) exceeds the matrix bounds at idx.
func UncorrelateVariances(p *mat.Dense, idx int, variances []float64) {
	Uncorrelate(p, idx, len(variances), 0)

	for i, v := range variances {
		p.Set(idx+i, idx+i, v)
	}
}

// UncorrelateSetBlock decorrelates the states [idx, idx+dof) and writes block
// into their self-covariance sub-matrix. block must be dof x dof.
func UncorrelateSetBlock(p *mat.Dense, idx, dof int, block mat.Matrix) {
	Uncorrelate(p, idx, dof, 0)

	for i := 0; i < dof; i++ {
		for j := 0; j < dof; j++ {
			p.Set(idx+i, idx+j, block.At(i, j))
		}
	}
}

// BlockTrace returns the sum of the diagonal entries of the states
// [idx, idx+dof).
func BlockTrace(p *mat.Dense, idx, dof int) float64 {
	d := make([]float64, dof)
	for i := 0; i < dof; i++ {
		d[i] = p.At(idx+i, idx+i)
	}

	return floats.Sum(d)
}

// Diag returns a copy of the matrix diagonal.
func Diag(p *mat.Dense) []float64 {
	n, _ := p.Dims()
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		d[i] = p.At(i, i)
	}

	return d
}

// CopyUpperToLower overwrites the strictly lower triangle of p with its upper
// triangle, making p exactly symmetric.
func CopyUpperToLower(p *mat.Dense) {
	n, _ := p.Dims()
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			p.Set(i, j, p.At(j, i))
		}
	}
}

// MakeRowColSymmetric symmetrizes the rows and columns of the states
// [idx, idx+dof) by averaging each off-diagonal pair.
func MakeRowColSymmetric(p *mat.Dense, idx, dof int) {
	n, _ := p.Dims()

	for i := idx; i < idx+dof; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			avg := 0.5 * (p.At(i, j) + p.At(j, i))
			p.Set(i, j, avg)
			p.Set(j, i, avg)
		}
	}
}

// ConstrainDiag clamps the diagonal entries of the states [idx, idx+dof)
// into [min, max].
func ConstrainDiag(p *mat.Dense, idx, dof int, min, max float64) {
	for i := idx; i < idx+dof; i++ {
		p.Set(i, i, Constrain(p.At(i, i), min, max))
	}
}

// Constrain clamps v into [min, max].
func Constrain(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}

	return v
}

// SymmetricCopy returns a symmetric copy of p built from its upper triangle.
// It panics if p is not square.
func SymmetricCopy(p *mat.Dense) *mat.SymDense {
	n, _ := p.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, p.At(i, j))
		}
	}

	return s
}

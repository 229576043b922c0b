package comparer

import (
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// TimeWithinTolerance compara instantes vindos do banco (precisão de
// microssegundo) com instantes gerados em memória.
func TimeWithinTolerance(toleranceMs int) cmp.Option {
	tolerance := time.Duration(toleranceMs) * time.Millisecond

	return cmp.Comparer(func(x, y time.Time) bool {
		diff := x.Sub(y)
		if diff < 0 {
			diff = -diff
		}
		return diff <= tolerance
	})
}

// ApproxStrength tolera o arredondamento de DOUBLE PRECISION no produto das forças.
func ApproxStrength() cmp.Option {
	return cmpopts.EquateApprox(0, 1e-9)
}

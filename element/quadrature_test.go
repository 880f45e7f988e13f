package element

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussLegendre_Exactness(t *testing.T) {
	for n := 1; n <= 8; n++ {
		x, w, err := GaussLegendre(n)
		require.NoError(t, err)
		require.Len(t, x, n)
		// ∫_{-1}^{1} x^k dx for every k ≤ 2n-1
		for k := 0; k <= 2*n-1; k++ {
			want := 0.
			if k%2 == 0 {
				want = 2. / float64(k+1)
			}
			got := 0.
			for i := range x {
				got += w[i] * math.Pow(x[i], float64(k))
			}
			assert.InDeltaf(t, want, got, 1e-12, "n=%d k=%d", n, k)
		}
	}
}

func TestGaussLegendre_TwoPoint(t *testing.T) {
	x, w, err := GaussLegendre(2)
	require.NoError(t, err)
	s := 1 / math.Sqrt(3)
	assert.InDeltaSlice(t, []float64{-s, s}, x, 1e-14)
	assert.InDeltaSlice(t, []float64{1, 1}, w, 1e-14)

	_, _, err = GaussLegendre(0)
	assert.Error(t, err)
}

func TestTensorRule(t *testing.T) {
	rule, err := TensorRule(D3, 3)
	require.NoError(t, err)
	assert.Equal(t, 27, rule.NumPoints())

	// r varies fastest
	assert.Equal(t, rule.S[0], rule.S[1])
	assert.NotEqual(t, rule.R[0], rule.R[1])
	assert.Equal(t, rule.R[0], rule.R[3])

	sum := 0.
	for _, w := range rule.W {
		sum += w
	}
	assert.InDelta(t, 8., sum, 1e-12)

	rule2, err := TensorRule(D2, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, rule2.NumPoints())
	assert.Nil(t, rule2.T)

	_, err = TensorRule(Dimensionality(7), 2)
	assert.Error(t, err)
}

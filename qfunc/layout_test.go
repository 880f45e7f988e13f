package qfunc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Offset(4, 0, 0))
	assert.Equal(t, 3, Offset(4, 0, 3))
	assert.Equal(t, 9, Offset(4, 2, 1))
}

func TestField_Views(t *testing.T) {
	f, err := NewField([]float64{1, 2, 3, 10, 20, 30}, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30}, f.Comp(1))
	assert.Equal(t, 20.0, f.At(1, 1))
	assert.Equal(t, []float64{3, 30}, f.Point(2, nil))

	f.SetPoint(0, []float64{-1, -10})
	assert.Equal(t, []float64{-1, 2, 3, -10, 20, 30}, f.Data)
	f.Set(2, 0, 7)
	assert.Equal(t, 7.0, f.Comp(0)[2])
}

func TestField_Check(t *testing.T) {
	_, err := NewField(make([]float64, 5), 3, 2)
	assert.ErrorIs(t, err, ErrBufferSize)

	_, err = NewField(nil, 3, 0)
	assert.ErrorIs(t, err, ErrUnsupportedShape)

	_, err = NewField(nil, -1, 1)
	assert.Error(t, err)

	// Q=0 is a valid empty field.
	f, err := NewField(nil, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())

	// Longer backing storage is allowed.
	_, err = NewField(make([]float64, 10), 3, 2)
	assert.NoError(t, err)
}

package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelEncoder(t *testing.T) {
	e := FitLabelEncoder([]string{"b", "a", "c", "a"})
	assert.Equal(t, []string{"a", "b", "c"}, e.Classes)

	i, err := e.Transform("c")
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	_, err = e.Transform("z")
	assert.Error(t, err)
}

func TestOneHotEncoder(t *testing.T) {
	e := &OneHotEncoder{Column: 1, Categories: 3}

	out, err := e.Transform([]float64{7, 2, 9})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 7, 9}, out)

	_, err = e.Transform([]float64{7, 3, 9})
	assert.Error(t, err)
	_, err = e.Transform([]float64{7})
	assert.Error(t, err)
}

func TestMinMaxScaler(t *testing.T) {
	s := FitMinMaxScaler([][]float64{{1, 10, 5}, {3, 20, 5}, {2, 15, 5}})

	assert.Equal(t, []float64{0.5, 0.5, 0}, s.Transform([]float64{2, 15, 5}))
	assert.Equal(t, []float64{1, 0, 0}, s.Transform([]float64{3, 10, 5}))
	assert.Equal(t, []float64{2, 15, 5}, s.Inverse([]float64{0.5, 0.5, 0}))
}

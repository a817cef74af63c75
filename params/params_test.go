package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrevorS/kfn"
)

func TestStore_SetGet(t *testing.T) {
	s := NewStore()
	s.Set("k", 10)

	v, err := Get[int](s, "k")
	require.NoError(t, err)
	assert.Equal(t, 10, v)
}

func TestStore_GetUnknown(t *testing.T) {
	s := NewStore()
	_, err := Get[int](s, "missing")
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestStore_GetTypeMismatch(t *testing.T) {
	s := NewStore()
	s.Set("k", "ten")

	_, err := Get[int](s, "k")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestStore_HasTracksPassed(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Has("k"))

	s.Set("k", 10)
	assert.True(t, s.Has("k"))
}

func TestStore_ClearPassedKeepsValue(t *testing.T) {
	s := NewStore()
	s.Set("k", 10)
	s.ClearPassed("k")

	assert.False(t, s.Has("k"), "cleared parameter should read as not passed")

	v, err := Get[int](s, "k")
	require.NoError(t, err)
	assert.Equal(t, 10, v, "value must survive ClearPassed")
}

func TestStore_SetAgainMarksPassed(t *testing.T) {
	s := NewStore()
	s.Set("k", 10)
	s.ClearPassed("k")
	s.Set("k", 12)

	assert.True(t, s.Has("k"))
	v, _ := Get[int](s, "k")
	assert.Equal(t, 12, v)
}

func TestStore_ResetClearsEntries(t *testing.T) {
	s := NewStore()
	s.Set("k", 10)
	s.Reset()

	assert.False(t, s.Has("k"))
	_, err := Get[int](s, "k")
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestStore_ResetClosesModelsOnce(t *testing.T) {
	ref := kfn.DatasetFromMatrix(randomMatrix(t, 3, 20, 1))
	res, err := kfn.Search(kfn.SearchConfig{Reference: ref})
	require.NoError(t, err)

	s := NewStore()
	// The same model registered under two names must be closed once.
	s.Set("input_model", res.Model)
	s.Set("output_model", res.Model)
	s.Reset()

	// A second Close reports the double-release defect, proving Reset
	// already released it exactly once.
	assert.ErrorIs(t, res.Model.Close(), kfn.ErrModelClosed)
}

func TestStore_TakeTransfersOwnership(t *testing.T) {
	ref := kfn.DatasetFromMatrix(randomMatrix(t, 3, 20, 2))
	res, err := kfn.Search(kfn.SearchConfig{Reference: ref})
	require.NoError(t, err)

	s := NewStore()
	s.Set("output_model", res.Model)

	m, err := Take[*kfn.Model](s, "output_model")
	require.NoError(t, err)
	require.Same(t, res.Model, m)

	// The store no longer owns the model: Reset must not close it.
	s.Reset()
	assert.NoError(t, m.Close())
}

package document_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpora/apps/ingest/internal/document"
)

func TestVector_Value(t *testing.T) {
	v := document.Vector{0.5, -1, 2.25}
	val, err := v.Value()
	require.NoError(t, err)
	assert.Equal(t, "[0.5,-1,2.25]", val)
}

func TestVector_NilValue(t *testing.T) {
	var v document.Vector
	val, err := v.Value()
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestVector_Scan(t *testing.T) {
	var v document.Vector
	require.NoError(t, v.Scan("[0.5,-1,2.25]"))
	assert.Equal(t, document.Vector{0.5, -1, 2.25}, v)

	require.NoError(t, v.Scan([]byte("[]")))
	assert.Empty(t, v)

	assert.Error(t, v.Scan("not a vector"))
	assert.Error(t, v.Scan(42))
}

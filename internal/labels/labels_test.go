package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/edge-classifier/internal/interpret"
	"github.com/Brownie44l1/edge-classifier/internal/model"
)

func TestTableFitsReferenceModel(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	assert.LessOrEqual(t, len(names), interpret.MaxClasses)
	assert.Equal(t, model.Reference().Output().Elements(), len(names))

	seen := map[string]bool{}
	for _, n := range names {
		assert.NotEmpty(t, n)
		assert.False(t, seen[n], "duplicate label %q", n)
		seen[n] = true
	}
}

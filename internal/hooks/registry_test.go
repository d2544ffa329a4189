package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
)

func TestRegistryResolveOrderAndScope(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, Register(r, PointTransform, AllTypes, appendHook("global")))
	require.NoError(t, Register(r, PointTransform, content.TypeWorkbook, appendHook("workbook")))
	require.NoError(t, Register(r, PointTransform, content.TypeUser, appendHook("user")))
	// Different context type at the same point is invisible to Resolve[tally].
	require.NoError(t, Register[int](r, PointTransform, AllTypes, Sync(func(i int) (int, error) { return i, nil })))

	out, err := Build[tally](r, PointTransform, content.TypeWorkbook).Execute(context.Background(), tally{})
	require.NoError(t, err)
	assert.Equal(t, []string{"global", "workbook"}, out.Values)

	assert.Len(t, Resolve[tally](r, PointFilter, content.TypeWorkbook), 0)
	assert.Equal(t, 4, r.Count(PointTransform))
}

func TestRegistryFreeze(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	assert.True(t, r.Frozen())
	assert.ErrorIs(t, Register(r, PointFilter, AllTypes, appendHook("late")), ErrRegistryFrozen)
	assert.Panics(t, func() { MustRegister(r, PointFilter, AllTypes, appendHook("late")) })
}

func TestResolveNilRegistry(t *testing.T) {
	assert.Nil(t, Resolve[tally](nil, PointFilter, content.TypeUser))
}

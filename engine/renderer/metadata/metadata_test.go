package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceKindRoundTrip(t *testing.T) {
	for _, k := range AllResourceKinds {
		got, err := ParseResourceKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
		assert.False(t, k.IsImage() && k.IsBuffer(), k.String())
	}
	_, err := ParseResourceKind("MESH")
	assert.Error(t, err)
}

func TestStageMask(t *testing.T) {
	m := StageVertex.Mask() | StageFragment.Mask()
	assert.True(t, m.Has(StageVertex))
	assert.False(t, m.Has(StageCompute))
	assert.Equal(t, []StageKind{StageVertex, StageFragment}, m.Stages())
	assert.True(t, StageMaskRayTracing.Has(StageRayMiss))
}

func TestTopologyFamily(t *testing.T) {
	assert.Equal(t, TopologyLineStrip.Family(), TopologyLineList.Family())
	assert.NotEqual(t, TopologyPointList.Family(), TopologyTriangleList.Family())
}

func TestExtentScale(t *testing.T) {
	assert.Equal(t, NewExtent(400, 300), NewExtent(800, 600).Scale(0.5))
	assert.Equal(t, NewExtent(1, 1), NewExtent(1, 1).Scale(0.25))
	assert.True(t, NewExtent(0, 10).IsZero())
	assert.InDelta(t, 4.0/3.0, NewExtent(800, 600).Ratio(), 1e-6)
}

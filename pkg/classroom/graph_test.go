package classroom

import (
	"testing"

	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/LingByte/EchoClass/pkg/mixer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T) (*Graph, *mixer.Context) {
	t.Helper()
	ctx := mixer.NewContext(media.NewFormat(8000))
	monitor, err := ctx.NewBus("monitor")
	require.NoError(t, err)
	return NewGraph(ctx, monitor), ctx
}

func addLive(t *testing.T, g *Graph, id string) {
	t.Helper()
	_, err := g.AddTarget(id)
	require.NoError(t, err)
	_, err = g.ActivateTarget(id)
	require.NoError(t, err)
	_, created, err := g.AddSource(id, id+"-mic")
	require.NoError(t, err)
	require.True(t, created)
}

func TestGraph_EdgesFollowActivationAndAudio(t *testing.T) {
	g, _ := newTestGraph(t)

	addLive(t, g, "a")
	assert.Zero(t, g.EdgeCount())

	// b is negotiated but silent: a reaches b, b reaches nobody yet
	_, err := g.AddTarget("b")
	require.NoError(t, err)
	n, err := g.ActivateTarget("b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"b"}, g.EdgesFrom("a"))
	assert.Empty(t, g.EdgesFrom("b"))

	_, created, err := g.AddSource("b", "b-mic")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, g.EdgeCount())
	assert.Equal(t, []string{"b"}, g.EdgesTo("a"))

	// repeats create nothing
	_, created, err = g.AddSource("b", "b-mic-2")
	require.NoError(t, err)
	assert.False(t, created)
	n, err = g.ActivateTarget("b")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, g.EdgeCount())

	e, ok := g.Edge("b", "a")
	require.True(t, ok)
	assert.Equal(t, "b-mic", e.TrackID)
	assert.Equal(t, mixer.UnityGain, e.Gain())
}

func TestGraph_SourceBeforeTargetActive(t *testing.T) {
	g, _ := newTestGraph(t)
	addLive(t, g, "a")

	_, err := g.AddTarget("b")
	require.NoError(t, err)
	_, _, err = g.AddSource("b", "b-mic")
	require.NoError(t, err)
	assert.Equal(t, 1, g.EdgeCount(), "b -> a only")
	assert.True(t, g.HasSource("b"))
	assert.False(t, g.IsActive("b"))

	n, err := g.ActivateTarget("b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, g.EdgeCount())
}

func TestGraph_RemoveParticipantSweep(t *testing.T) {
	g, ctx := newTestGraph(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		addLive(t, g, id)
	}
	require.Equal(t, 12, g.EdgeCount())

	removed := g.RemoveParticipant("c")
	assert.Equal(t, 6, removed)
	assert.Equal(t, 6, g.EdgeCount())
	assert.Empty(t, g.EdgesFrom("c"))
	assert.Empty(t, g.EdgesTo("c"))
	for _, e := range g.Edges() {
		assert.NotEqual(t, "c", e.Source)
		assert.NotEqual(t, "c", e.Target)
	}
	// three sources, three mixes plus the monitor, six edges plus three monitor taps
	assert.Equal(t, mixer.Stats{Sources: 3, Gains: 9, Buses: 4}, ctx.Stats())

	assert.Zero(t, g.RemoveParticipant("c"))
	assert.Zero(t, g.RemoveParticipant("nobody"))
	assert.Equal(t, 6, g.EdgeCount())
}

func TestGraph_SetGainAndErrors(t *testing.T) {
	g, _ := newTestGraph(t)
	addLive(t, g, "a")
	addLive(t, g, "b")

	require.NoError(t, g.SetGain("a", "b", 0.3))
	e, _ := g.Edge("a", "b")
	assert.Equal(t, 0.3, e.Gain())

	assert.ErrorIs(t, g.SetGain("a", "x", 1), ErrEdgeNotFound)
	_, err := g.ActivateTarget("x")
	assert.ErrorIs(t, err, ErrUnknownParticipant)
	_, err = g.link("a", "a")
	assert.ErrorIs(t, err, ErrSelfEdge)
}

func TestGraph_EdgesSorted(t *testing.T) {
	g, _ := newTestGraph(t)
	for _, id := range []string{"c", "a", "b"} {
		addLive(t, g, id)
	}
	edges := g.Edges()
	require.Len(t, edges, 6)
	assert.Equal(t, EdgeSnapshot{Source: "a", Target: "b", TrackID: "a-mic", Gain: 1}, edges[0])
	assert.Equal(t, EdgeSnapshot{Source: "c", Target: "b", TrackID: "c-mic", Gain: 1}, edges[5])
}

func TestGraph_AddSourceRollsBackWhenMonitorFails(t *testing.T) {
	ctx := mixer.NewContext(media.NewFormat(8000))
	monitor, err := ctx.NewBus("monitor")
	require.NoError(t, err)
	g := NewGraph(ctx, monitor)
	monitor.Release()

	_, created, err := g.AddSource("a", "a-mic")
	require.ErrorIs(t, err, mixer.ErrNodeReleased)
	assert.False(t, created)
	assert.False(t, g.HasSource("a"))
	assert.Equal(t, mixer.Stats{}, ctx.Stats())

	// a retry fails again instead of reusing a half-built source
	_, _, err = g.AddSource("a", "a-mic")
	assert.ErrorIs(t, err, mixer.ErrNodeReleased)
}

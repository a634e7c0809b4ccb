package mixer

import (
	"testing"

	"github.com/LingByte/EchoClass/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(n int, v int16) media.Frame {
	f := make(media.Frame, n)
	for i := range f {
		f[i] = v
	}
	return f
}

func wire(t *testing.T, c *Context, src *Source, b *Bus, gain float64) *Gain {
	t.Helper()
	g, err := c.NewGain(gain)
	require.NoError(t, err)
	require.NoError(t, c.Wire(src, g, b))
	return g
}

func TestBus_MixesInputs(t *testing.T) {
	c := NewContext(media.NewFormat(8000))
	a, _ := c.NewSource("a")
	b, _ := c.NewSource("b")
	bus, _ := c.NewBus("t")

	wire(t, c, a, bus, UnityGain)
	wire(t, c, b, bus, 0.5)

	a.Push(constant(160, 1000))
	b.Push(constant(160, 1000))

	out := bus.Pull()
	require.Len(t, out, 160)
	assert.Equal(t, int16(1500), out[0])
	assert.Equal(t, int16(1500), out[159])

	// queues drained: silence next
	assert.Equal(t, int16(0), bus.Pull()[0])
}

func TestBus_Saturates(t *testing.T) {
	c := NewContext(media.NewFormat(8000))
	bus, _ := c.NewBus("t")
	for i := 0; i < 3; i++ {
		src, _ := c.NewSource("s")
		wire(t, c, src, bus, UnityGain)
		src.Push(constant(160, 30000))
	}
	assert.Equal(t, int16(32767), bus.Pull()[0])
}

func TestBus_ShortFramePadded(t *testing.T) {
	c := NewContext(media.NewFormat(8000))
	src, _ := c.NewSource("s")
	bus, _ := c.NewBus("t")
	wire(t, c, src, bus, UnityGain)

	src.Push(constant(10, 7))
	out := bus.Pull()
	assert.Len(t, out, 160)
	assert.Equal(t, int16(7), out[9])
	assert.Equal(t, int16(0), out[10])
}

func TestSource_FansOutIndependently(t *testing.T) {
	c := NewContext(media.NewFormat(8000))
	src, _ := c.NewSource("s")
	b1, _ := c.NewBus("t1")
	b2, _ := c.NewBus("t2")
	wire(t, c, src, b1, UnityGain)
	wire(t, c, src, b2, UnityGain)
	assert.Equal(t, 2, src.Outputs())

	src.Push(constant(160, 42))
	assert.Equal(t, int16(42), b1.Pull()[0])
	assert.Equal(t, int16(42), b2.Pull()[0])
}

func TestGain_QueueBounded(t *testing.T) {
	c := NewContext(media.NewFormat(8000))
	src, _ := c.NewSource("s")
	bus, _ := c.NewBus("t")
	wire(t, c, src, bus, UnityGain)

	for i := 0; i < c.queueDepth+5; i++ {
		src.Push(constant(160, int16(i)))
	}
	// oldest frames were dropped
	assert.Equal(t, int16(5), bus.Pull()[0])
}

func TestGain_SetValue(t *testing.T) {
	c := NewContext(media.NewFormat(8000))
	src, _ := c.NewSource("s")
	bus, _ := c.NewBus("t")
	g := wire(t, c, src, bus, UnityGain)

	require.NoError(t, g.SetValue(0.25))
	assert.Equal(t, 0.25, g.Value())
	assert.ErrorIs(t, g.SetValue(-1), ErrNegativeGain)

	src.Push(constant(160, 400))
	assert.Equal(t, int16(100), bus.Pull()[0])

	_, err := c.NewGain(-0.1)
	assert.ErrorIs(t, err, ErrNegativeGain)
}

func TestWire_Errors(t *testing.T) {
	c := NewContext(media.NewFormat(8000))
	other := NewContext(media.NewFormat(8000))
	src, _ := c.NewSource("s")
	bus, _ := c.NewBus("t")
	g := wire(t, c, src, bus, UnityGain)

	assert.ErrorIs(t, c.Wire(src, g, bus), ErrAlreadyWired)

	foreign, _ := other.NewGain(UnityGain)
	assert.ErrorIs(t, c.Wire(src, foreign, bus), ErrForeignNode)

	bus.Release()
	g2, _ := c.NewGain(UnityGain)
	assert.ErrorIs(t, c.Wire(src, g2, bus), ErrNodeReleased)
}

func TestRelease_FreesGains(t *testing.T) {
	c := NewContext(media.NewFormat(8000))
	a, _ := c.NewSource("a")
	b, _ := c.NewSource("b")
	busA, _ := c.NewBus("a")
	busB, _ := c.NewBus("b")
	ab := wire(t, c, a, busB, UnityGain)
	ba := wire(t, c, b, busA, UnityGain)

	assert.Equal(t, Stats{Sources: 2, Gains: 2, Buses: 2}, c.Stats())

	a.Release()
	assert.True(t, ab.Released())
	assert.False(t, ba.Released())
	assert.Equal(t, 0, busB.Inputs())
	assert.Equal(t, Stats{Sources: 1, Gains: 1, Buses: 2}, c.Stats())

	busA.Release()
	assert.True(t, ba.Released())
	assert.Equal(t, 0, b.Outputs())
	assert.Equal(t, Stats{Sources: 1, Gains: 0, Buses: 1}, c.Stats())

	// second release is a no-op
	a.Release()
	busA.Release()
	assert.Equal(t, Stats{Sources: 1, Gains: 0, Buses: 1}, c.Stats())

	// a released source swallows frames
	a.Push(constant(160, 1))
	assert.Equal(t, int16(0), busB.Pull()[0])
}

func TestContext_Close(t *testing.T) {
	c := NewContext(media.NewFormat(8000))
	src, _ := c.NewSource("s")
	bus, _ := c.NewBus("t")
	wire(t, c, src, bus, UnityGain)

	c.Close()
	c.Close()
	assert.True(t, c.Closed())
	assert.Equal(t, 0, c.Stats().Total())
	assert.True(t, bus.Released())

	_, err := c.NewSource("late")
	assert.ErrorIs(t, err, ErrContextClosed)
	_, err = c.NewBus("late")
	assert.ErrorIs(t, err, ErrContextClosed)
	_, err = c.NewGain(UnityGain)
	assert.ErrorIs(t, err, ErrContextClosed)

	assert.Equal(t, int16(0), bus.Pull()[0])
}

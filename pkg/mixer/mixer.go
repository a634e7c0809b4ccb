// Package mixer is the audio-processing context a room owns. Sources receive
// decoded PCM, gain nodes carry one source into one bus, and a bus sums its
// inputs into the frames a single listener hears.
//
// Topology changes (connect, disconnect, release) serialize on the context
// lock. The data path takes it shared: Source.Push from receive loops and
// Bus.Pull from send pumps.
package mixer

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/LingByte/EchoClass/pkg/constants"
	"github.com/LingByte/EchoClass/pkg/media"
)

var (
	ErrContextClosed  = errors.New("mixing context closed")
	ErrNodeReleased   = errors.New("node released")
	ErrForeignNode    = errors.New("node belongs to another context")
	ErrAlreadyWired   = errors.New("node already connected")
	ErrNegativeGain   = errors.New("gain must not be negative")
	errUnknownContext = errors.New("nil context")
)

// UnityGain is the default gain of a forward edge.
const UnityGain = 1.0

// Context owns every node of one room.
type Context struct {
	format     media.Format
	queueDepth int

	mu      sync.RWMutex
	closed  bool
	sources map[*Source]struct{}
	gains   map[*Gain]struct{}
	buses   map[*Bus]struct{}
}

// NewContext creates a context whose nodes exchange frames of format.
func NewContext(format media.Format) *Context {
	return &Context{
		format:     format,
		queueDepth: constants.MixQueueFrames,
		sources:    make(map[*Source]struct{}),
		gains:      make(map[*Gain]struct{}),
		buses:      make(map[*Bus]struct{}),
	}
}

func (c *Context) Format() media.Format {
	return c.format
}

// Stats counts live nodes by kind.
type Stats struct {
	Sources int
	Gains   int
	Buses   int
}

func (s Stats) Total() int {
	return s.Sources + s.Gains + s.Buses
}

func (c *Context) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Sources: len(c.sources), Gains: len(c.gains), Buses: len(c.buses)}
}

func (c *Context) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close releases every node. It is safe to call more than once.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for g := range c.gains {
		c.releaseGainLocked(g)
	}
	for s := range c.sources {
		s.released = true
	}
	for b := range c.buses {
		b.released = true
	}
	c.sources = map[*Source]struct{}{}
	c.buses = map[*Bus]struct{}{}
}

// NewSource creates a node that forwarded audio is pushed into.
func (c *Context) NewSource(label string) (*Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	s := &Source{ctx: c, label: label, outputs: make(map[*Gain]struct{})}
	c.sources[s] = struct{}{}
	return s, nil
}

// NewGain creates an unconnected gain node.
func (c *Context) NewGain(value float64) (*Gain, error) {
	if value < 0 || math.IsNaN(value) {
		return nil, ErrNegativeGain
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	g := &Gain{ctx: c}
	g.value.Store(math.Float64bits(value))
	c.gains[g] = struct{}{}
	return g, nil
}

// NewBus creates a mix destination.
func (c *Context) NewBus(label string) (*Bus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	b := &Bus{ctx: c, label: label, inputs: make(map[*Gain]struct{})}
	c.buses[b] = struct{}{}
	return b, nil
}

// Wire connects src -> gain -> bus in one topology change.
func (c *Context) Wire(src *Source, g *Gain, b *Bus) error {
	if c == nil {
		return errUnknownContext
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	if src.ctx != c || g.ctx != c || b.ctx != c {
		return ErrForeignNode
	}
	if src.released || g.released || b.released {
		return ErrNodeReleased
	}
	if g.input != nil || g.output != nil {
		return ErrAlreadyWired
	}
	g.input = src
	g.output = b
	src.outputs[g] = struct{}{}
	b.inputs[g] = struct{}{}
	return nil
}

func (c *Context) releaseGainLocked(g *Gain) {
	if g.released {
		return
	}
	g.released = true
	if g.input != nil {
		delete(g.input.outputs, g)
		g.input = nil
	}
	if g.output != nil {
		delete(g.output.inputs, g)
		g.output = nil
	}
	g.mu.Lock()
	g.queue = nil
	g.mu.Unlock()
	delete(c.gains, g)
}

// Source is the entry point of one participant's decoded audio.
type Source struct {
	ctx      *Context
	label    string
	outputs  map[*Gain]struct{}
	released bool
}

func (s *Source) Label() string {
	return s.label
}

// Push copies frame to every connected gain. Frames pushed into a released
// source are discarded.
func (s *Source) Push(frame media.Frame) {
	s.ctx.mu.RLock()
	defer s.ctx.mu.RUnlock()
	if s.released {
		return
	}
	for g := range s.outputs {
		g.enqueue(frame, s.ctx.queueDepth)
	}
}

// Outputs is the number of gains currently fed by the source.
func (s *Source) Outputs() int {
	s.ctx.mu.RLock()
	defer s.ctx.mu.RUnlock()
	return len(s.outputs)
}

// Release disconnects and frees the source and every gain it feeds.
func (s *Source) Release() {
	c := s.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.released {
		return
	}
	for g := range s.outputs {
		c.releaseGainLocked(g)
	}
	s.released = true
	delete(c.sources, s)
}

// Gain scales one source into one bus and buffers frames between the push
// and pull sides.
type Gain struct {
	ctx      *Context
	value    atomic.Uint64
	input    *Source
	output   *Bus
	released bool

	mu    sync.Mutex
	queue []media.Frame
}

func (g *Gain) Value() float64 {
	return math.Float64frombits(g.value.Load())
}

// SetValue changes the gain without touching topology.
func (g *Gain) SetValue(v float64) error {
	if v < 0 || math.IsNaN(v) {
		return ErrNegativeGain
	}
	g.value.Store(math.Float64bits(v))
	return nil
}

// Release disconnects the gain from its source and bus.
func (g *Gain) Release() {
	g.ctx.mu.Lock()
	defer g.ctx.mu.Unlock()
	g.ctx.releaseGainLocked(g)
}

func (g *Gain) Released() bool {
	g.ctx.mu.RLock()
	defer g.ctx.mu.RUnlock()
	return g.released
}

func (g *Gain) enqueue(frame media.Frame, depth int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) >= depth {
		g.queue = g.queue[1:]
	}
	g.queue = append(g.queue, frame)
}

func (g *Gain) dequeue() (media.Frame, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return nil, false
	}
	f := g.queue[0]
	g.queue[0] = nil
	g.queue = g.queue[1:]
	return f, true
}

// Bus is a private mix: the sum of its inputs, one frame per Pull.
type Bus struct {
	ctx      *Context
	label    string
	inputs   map[*Gain]struct{}
	released bool
}

func (b *Bus) Label() string {
	return b.label
}

// Inputs is the number of gains feeding the bus.
func (b *Bus) Inputs() int {
	b.ctx.mu.RLock()
	defer b.ctx.mu.RUnlock()
	return len(b.inputs)
}

// Pull mixes the next queued frame of every input. Inputs with nothing
// queued contribute silence; the sum saturates at the int16 range.
func (b *Bus) Pull() media.Frame {
	size := b.ctx.format.SamplesPerFrame() * b.ctx.format.Channels
	acc := make([]float64, size)

	b.ctx.mu.RLock()
	if !b.released {
		for g := range b.inputs {
			f, ok := g.dequeue()
			if !ok {
				continue
			}
			gain := g.Value()
			n := len(f)
			if n > size {
				n = size
			}
			for i := 0; i < n; i++ {
				acc[i] += float64(f[i]) * gain
			}
		}
	}
	b.ctx.mu.RUnlock()

	out := make(media.Frame, size)
	for i, v := range acc {
		out[i] = saturate(v)
	}
	return out
}

func saturate(v float64) int16 {
	switch {
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(v))
}

// Release frees the bus and every gain feeding it.
func (b *Bus) Release() {
	c := b.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.released {
		return
	}
	for g := range b.inputs {
		c.releaseGainLocked(g)
	}
	b.released = true
	delete(c.buses, b)
}

func (b *Bus) Released() bool {
	b.ctx.mu.RLock()
	defer b.ctx.mu.RUnlock()
	return b.released
}

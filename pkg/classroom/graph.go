package classroom

import (
	"fmt"
	"sort"
	"time"

	"github.com/LingByte/EchoClass/pkg/mixer"
)

// EdgeKey identifies a forward edge.
type EdgeKey struct {
	Source string
	Target string
}

// Edge mixes Source's inbound audio into Target's private mix.
type Edge struct {
	Source    string
	Target    string
	TrackID   string
	CreatedAt time.Time
	gain      *mixer.Gain
}

func (e *Edge) Gain() float64 {
	return e.gain.Value()
}

type sourceEntry struct {
	node    *mixer.Source
	trackID string
	monitor *mixer.Gain
}

// Graph is the forward-edge index of one room, queryable by either
// endpoint, together with the mixer nodes the edges own. It is not safe for
// concurrent use; the room's event loop is its only writer.
type Graph struct {
	ctx     *mixer.Context
	monitor *mixer.Bus

	buses   map[string]*mixer.Bus
	active  map[string]bool
	sources map[string]*sourceEntry

	bySource map[string]map[string]*Edge
	byTarget map[string]map[string]*Edge
	count    int
}

// NewGraph builds an empty graph. When monitor is non-nil every source is
// also mixed into it for local host playback.
func NewGraph(ctx *mixer.Context, monitor *mixer.Bus) *Graph {
	return &Graph{
		ctx:      ctx,
		monitor:  monitor,
		buses:    make(map[string]*mixer.Bus),
		active:   make(map[string]bool),
		sources:  make(map[string]*sourceEntry),
		bySource: make(map[string]map[string]*Edge),
		byTarget: make(map[string]map[string]*Edge),
	}
}

// AddTarget creates the private mix bus of a participant. It returns the
// existing bus on repeat calls.
func (g *Graph) AddTarget(id string) (*mixer.Bus, error) {
	if bus, ok := g.buses[id]; ok {
		return bus, nil
	}
	bus, err := g.ctx.NewBus("mix:" + id)
	if err != nil {
		return nil, err
	}
	g.buses[id] = bus
	return bus, nil
}

// ActivateTarget makes id eligible to hear others and mixes every live
// source except id into its bus. It returns the number of edges created.
func (g *Graph) ActivateTarget(id string) (int, error) {
	if _, ok := g.buses[id]; !ok {
		return 0, fmt.Errorf("%w: no mix for %s", ErrUnknownParticipant, id)
	}
	if g.active[id] {
		return 0, nil
	}
	g.active[id] = true

	created := 0
	for _, src := range g.sortedSources() {
		if src == id {
			continue
		}
		ok, err := g.link(src, id)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// AddSource registers id's first inbound audio and mixes it into every
// other active target. A repeat call for the same participant returns the
// existing source node and creates nothing.
func (g *Graph) AddSource(id, trackID string) (*mixer.Source, bool, error) {
	if entry, ok := g.sources[id]; ok {
		return entry.node, false, nil
	}

	node, err := g.ctx.NewSource("src:" + id)
	if err != nil {
		return nil, false, err
	}
	entry := &sourceEntry{node: node, trackID: trackID}
	if g.monitor != nil {
		mon, err := g.ctx.NewGain(mixer.UnityGain)
		if err != nil {
			node.Release()
			return nil, false, err
		}
		if err := g.ctx.Wire(node, mon, g.monitor); err != nil {
			mon.Release()
			node.Release()
			return nil, false, err
		}
		entry.monitor = mon
	}
	g.sources[id] = entry

	for _, target := range g.sortedActive() {
		if target == id {
			continue
		}
		if _, err := g.link(id, target); err != nil {
			return node, true, err
		}
	}
	return node, true, nil
}

// RetrackSource records that trackID now feeds id's existing source.
func (g *Graph) RetrackSource(id, trackID string) {
	entry, ok := g.sources[id]
	if !ok {
		return
	}
	entry.trackID = trackID
	for _, e := range g.bySource[id] {
		e.TrackID = trackID
	}
}

// link creates source -> target unless it exists. It reports whether an
// edge was created.
func (g *Graph) link(source, target string) (bool, error) {
	if source == target {
		return false, ErrSelfEdge
	}
	if _, ok := g.bySource[source][target]; ok {
		return false, nil
	}
	src, ok := g.sources[source]
	if !ok {
		return false, fmt.Errorf("%w: %s has no audio", ErrUnknownParticipant, source)
	}
	bus, ok := g.buses[target]
	if !ok {
		return false, fmt.Errorf("%w: no mix for %s", ErrUnknownParticipant, target)
	}

	gain, err := g.ctx.NewGain(mixer.UnityGain)
	if err != nil {
		return false, err
	}
	if err := g.ctx.Wire(src.node, gain, bus); err != nil {
		gain.Release()
		return false, err
	}

	e := &Edge{Source: source, Target: target, TrackID: src.trackID, CreatedAt: time.Now(), gain: gain}
	if g.bySource[source] == nil {
		g.bySource[source] = make(map[string]*Edge)
	}
	if g.byTarget[target] == nil {
		g.byTarget[target] = make(map[string]*Edge)
	}
	g.bySource[source][target] = e
	g.byTarget[target][source] = e
	g.count++
	return true, nil
}

// RemoveParticipant removes, in one sweep, every edge with id as source or
// target and releases the participant's source, monitor tap and mix bus.
// It returns the number of edges removed and is a no-op for unknown ids.
func (g *Graph) RemoveParticipant(id string) int {
	removed := 0
	for target, e := range g.bySource[id] {
		e.gain.Release()
		delete(g.byTarget[target], id)
		if len(g.byTarget[target]) == 0 {
			delete(g.byTarget, target)
		}
		removed++
	}
	delete(g.bySource, id)

	for source, e := range g.byTarget[id] {
		e.gain.Release()
		delete(g.bySource[source], id)
		if len(g.bySource[source]) == 0 {
			delete(g.bySource, source)
		}
		removed++
	}
	delete(g.byTarget, id)
	g.count -= removed

	if entry, ok := g.sources[id]; ok {
		entry.node.Release()
		delete(g.sources, id)
	}
	if bus, ok := g.buses[id]; ok {
		bus.Release()
		delete(g.buses, id)
	}
	delete(g.active, id)
	return removed
}

// SetGain changes one edge's gain without touching topology.
func (g *Graph) SetGain(source, target string, value float64) error {
	e, ok := g.bySource[source][target]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrEdgeNotFound, source, target)
	}
	return e.gain.SetValue(value)
}

func (g *Graph) Edge(source, target string) (*Edge, bool) {
	e, ok := g.bySource[source][target]
	return e, ok
}

func (g *Graph) EdgeCount() int {
	return g.count
}

// HasSource reports whether id's audio has been observed.
func (g *Graph) HasSource(id string) bool {
	_, ok := g.sources[id]
	return ok
}

func (g *Graph) IsActive(id string) bool {
	return g.active[id]
}

// EdgesFrom lists the targets that hear id.
func (g *Graph) EdgesFrom(id string) []string {
	return sortedKeys(g.bySource[id])
}

// EdgesTo lists the sources mixed into id.
func (g *Graph) EdgesTo(id string) []string {
	return sortedKeys(g.byTarget[id])
}

// Edges returns every edge ordered by source then target.
func (g *Graph) Edges() []EdgeSnapshot {
	out := make([]EdgeSnapshot, 0, g.count)
	for _, targets := range g.bySource {
		for _, e := range targets {
			out = append(out, EdgeSnapshot{Source: e.Source, Target: e.Target, TrackID: e.TrackID, Gain: e.Gain()})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

func (g *Graph) sortedSources() []string {
	return sortedKeys(g.sources)
}

func (g *Graph) sortedActive() []string {
	out := make([]string, 0, len(g.active))
	for id, ok := range g.active {
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"delivery-sla-lab/internal/domain"
)

// ErrInvalidGraph is returned for duplicate stages, unknown dependencies and cycles.
var ErrInvalidGraph = errors.New("invalid stage graph")

// StageFunc executes one stage. It never returns an error: every failure is
// reported as a domain.Failed outcome.
type StageFunc func(ctx context.Context, runID string) domain.Outcome

// Stage is one node of the run graph.
type Stage struct {
	Name    string
	Table   string // dataset-qualified table the stage produces
	Deps    []string
	Timeout time.Duration // enforced by Run
	Run     StageFunc
}

// Graph is a validated stage DAG split into dependency levels.
type Graph struct {
	stages []Stage
	index  map[string]int
	levels [][]int
}

// NewGraph validates stages and computes their levels. A stage's level is one
// more than the deepest of its dependencies; within a level, declaration order
// is kept.
func NewGraph(stages ...Stage) (*Graph, error) {
	g := &Graph{
		stages: stages,
		index:  make(map[string]int, len(stages)),
	}

	for i, s := range stages {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: stage %d has no name", ErrInvalidGraph, i)
		}
		if s.Run == nil {
			return nil, fmt.Errorf("%w: stage %s has no run func", ErrInvalidGraph, s.Name)
		}
		if _, dup := g.index[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate stage %s", ErrInvalidGraph, s.Name)
		}
		g.index[s.Name] = i
	}
	for _, s := range stages {
		for _, d := range s.Deps {
			if _, ok := g.index[d]; !ok {
				return nil, fmt.Errorf("%w: stage %s depends on unknown stage %s", ErrInvalidGraph, s.Name, d)
			}
		}
	}

	// Kahn's algorithm, one level per round
	indegree := make([]int, len(stages))
	children := make([][]int, len(stages))
	for i, s := range stages {
		indegree[i] = len(s.Deps)
		for _, d := range s.Deps {
			children[g.index[d]] = append(children[g.index[d]], i)
		}
	}

	var ready []int
	for i, n := range indegree {
		if n == 0 {
			ready = append(ready, i)
		}
	}
	placed := 0
	for len(ready) > 0 {
		g.levels = append(g.levels, ready)
		placed += len(ready)

		var next []int
		for _, i := range ready {
			for _, c := range children[i] {
				indegree[c]--
				if indegree[c] == 0 {
					next = append(next, c)
				}
			}
		}
		sort.Ints(next)
		ready = next
	}

	if placed != len(stages) {
		var cyclic []string
		for i, n := range indegree {
			if n > 0 {
				cyclic = append(cyclic, stages[i].Name)
			}
		}
		return nil, fmt.Errorf("%w: cycle through %v", ErrInvalidGraph, cyclic)
	}
	return g, nil
}

// MustGraph is NewGraph that panics on error.
func MustGraph(stages ...Stage) *Graph {
	g, err := NewGraph(stages...)
	if err != nil {
		panic(err)
	}
	return g
}

// Stages returns the stages in declaration order.
func (g *Graph) Stages() []Stage {
	return g.stages
}

// Stage looks up a stage by name.
func (g *Graph) Stage(name string) (Stage, bool) {
	i, ok := g.index[name]
	if !ok {
		return Stage{}, false
	}
	return g.stages[i], true
}

// Levels returns stage names grouped by dependency level.
func (g *Graph) Levels() [][]string {
	out := make([][]string, len(g.levels))
	for l, level := range g.levels {
		for _, i := range level {
			out[l] = append(out[l], g.stages[i].Name)
		}
	}
	return out
}

// Tables returns the produced tables in declaration order, skipping stages
// without one.
func (g *Graph) Tables() []string {
	var out []string
	for _, s := range g.stages {
		if s.Table != "" {
			out = append(out, s.Table)
		}
	}
	return out
}

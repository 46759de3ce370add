package stream

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group runs independent pipelines concurrently. The first failure cancels
// the context of the others and is returned by Run.
type Group struct {
	pipelines []*Pipeline
	limit     int
}

// NewGroup creates a group of pipelines.
func NewGroup(pipelines ...*Pipeline) *Group {
	return &Group{pipelines: pipelines}
}

// Add appends a pipeline to the group.
func (g *Group) Add(p *Pipeline) *Group {
	g.pipelines = append(g.pipelines, p)
	return g
}

// SetLimit bounds the number of pipelines running at once. Zero or negative
// means no limit.
func (g *Group) SetLimit(n int) *Group {
	g.limit = n
	return g
}

// Run runs every pipeline and waits for all of them.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	if g.limit > 0 {
		eg.SetLimit(g.limit)
	}
	for _, p := range g.pipelines {
		eg.Go(func() error { return p.Run(ctx) })
	}
	return eg.Wait()
}

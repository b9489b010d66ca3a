package cloud

import (
	"context"
	"sync"
)

// TargetGroupCache maps a VM id to the target groups it is currently a
// member of. It is populated lazily from a single DescribeTargetGroups
// call on first use and never invalidated — callers construct one per
// Engine run and pass it explicitly to whatever needs it, rather than
// relying on process-global state.
type TargetGroupCache struct {
	lb LBTarget

	mu     sync.Mutex
	loaded bool
	byVMID map[string][]string // vmID -> target group ARNs
}

// NewTargetGroupCache returns an empty, unloaded cache backed by lb.
func NewTargetGroupCache(lb LBTarget) *TargetGroupCache {
	return &TargetGroupCache{lb: lb}
}

// TargetGroupsContaining returns the ARNs of target groups that currently
// have vmID registered. The underlying target group listing is fetched at
// most once per cache lifetime.
func (c *TargetGroupCache) TargetGroupsContaining(ctx context.Context, vmID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		groups, err := c.lb.DescribeTargetGroups(ctx)
		if err != nil {
			return nil, err
		}
		c.byVMID = make(map[string][]string)
		for _, g := range groups {
			for _, member := range g.Members {
				c.byVMID[member] = append(c.byVMID[member], g.ARN)
			}
		}
		c.loaded = true
	}

	return c.byVMID[vmID], nil
}

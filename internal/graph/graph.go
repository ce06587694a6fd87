// Package graph is the service layer over the typed relationship graph:
// edge lifecycle, bounded traversal, and the project Kanban projection.
package graph

import (
	"context"
	"time"

	"memoryd/internal/config"
	"memoryd/internal/ids"
	"memoryd/internal/logging"
	"memoryd/internal/store"
	"memoryd/internal/types"
)

// Service wraps the store's graph tables with validation and traversal.
type Service struct {
	store *store.LocalStore
	cfg   config.GraphConfig
}

// New builds a graph service.
func New(s *store.LocalStore, cfg config.GraphConfig) *Service {
	return &Service{store: s, cfg: cfg}
}

// CreateEdge links two existing nodes. A depends_on edge that would close a
// cycle is rejected with CircularDependency.
func (s *Service) CreateEdge(ctx context.Context, tenant, from, to string, edgeType types.EdgeType, properties map[string]interface{}) (*types.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.ErrDeadlineExceeded
	}
	if tenant == "" || from == "" || to == "" {
		return nil, types.InvalidInputf("tenant, from, and to required")
	}
	if !edgeType.Valid() {
		return nil, types.InvalidInputf("edge type %q unknown", edgeType)
	}

	now := time.Now().UTC()
	edge, err := s.store.UpsertEdge(&types.Edge{
		ID:         ids.New(ids.PrefixEdge),
		Tenant:     tenant,
		FromNode:   from,
		ToNode:     to,
		Type:       edgeType,
		Properties: properties,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	logging.Graph("Edge %s: %s -[%s]-> %s", edge.ID, from, edgeType, to)
	return edge, nil
}

// GetEdges returns edges touching a node.
func (s *Service) GetEdges(tenant, node string, dir types.Direction, edgeTypes []types.EdgeType) ([]types.Edge, error) {
	if dir == "" {
		dir = types.DirectionBoth
	}
	if !dir.Valid() {
		return nil, types.InvalidInputf("direction %q unknown", dir)
	}
	for _, t := range edgeTypes {
		if !t.Valid() {
			return nil, types.InvalidInputf("edge type %q unknown", t)
		}
	}
	return s.store.GetEdges(tenant, node, dir, edgeTypes)
}

// UpdateEdgeProperties shallow-merges a patch into an edge's properties.
func (s *Service) UpdateEdgeProperties(ctx context.Context, tenant, edgeID string, patch map[string]interface{}) (*types.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.ErrDeadlineExceeded
	}
	if len(patch) == 0 {
		return nil, types.InvalidInputf("empty property patch")
	}
	return s.store.UpdateEdgeProperties(tenant, edgeID, patch, time.Now().UTC())
}

// DeleteEdge removes one edge.
func (s *Service) DeleteEdge(ctx context.Context, tenant, edgeID string) error {
	if err := ctx.Err(); err != nil {
		return types.ErrDeadlineExceeded
	}
	return s.store.DeleteEdge(tenant, edgeID)
}

// TraversalNode is one node reached during a traversal: its depth from the
// start and the edge that reached it.
type TraversalNode struct {
	NodeID string     `json:"node_id"`
	Kind   string     `json:"kind"`
	Depth  int        `json:"depth"`
	Edge   types.Edge `json:"edge"`
}

// Traverse walks edges of one type from a start node, breadth-first, up to
// the depth cap. Each reachable node appears once, at its shallowest depth;
// cycles are broken by per-path visited sets; the cap truncates silently.
func (s *Service) Traverse(tenant, start string, edgeType types.EdgeType, dir types.Direction, depth int) ([]TraversalNode, error) {
	timer := logging.StartTimer(logging.CategoryGraph, "Traverse")
	defer timer.Stop()

	if !edgeType.Valid() {
		return nil, types.InvalidInputf("edge type %q unknown", edgeType)
	}
	if dir == "" {
		dir = types.DirectionOut
	}
	if !dir.Valid() {
		return nil, types.InvalidInputf("direction %q unknown", dir)
	}
	if depth <= 0 || depth > s.cfg.MaxTraversalDepth {
		depth = s.cfg.MaxTraversalDepth
	}
	exists, err := s.store.NodeExists(tenant, start)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, types.NotFoundf("node %s", start)
	}

	type frontierEntry struct {
		node  string
		depth int
		path  map[string]bool
	}
	frontier := []frontierEntry{{node: start, depth: 0, path: map[string]bool{start: true}}}
	emitted := map[string]bool{start: true}
	var out []TraversalNode

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.depth >= depth {
			continue
		}

		edges, err := s.store.GetEdges(tenant, cur.node, dir, []types.EdgeType{edgeType})
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			next := e.ToNode
			if next == cur.node {
				next = e.FromNode
			}
			if cur.path[next] {
				continue
			}
			if !emitted[next] {
				emitted[next] = true
				kind, err := s.store.NodeKind(tenant, next)
				if err != nil {
					kind = ""
				}
				out = append(out, TraversalNode{
					NodeID: next,
					Kind:   kind,
					Depth:  cur.depth + 1,
					Edge:   e,
				})
			}
			path := make(map[string]bool, len(cur.path)+1)
			for k := range cur.path {
				path[k] = true
			}
			path[next] = true
			frontier = append(frontier, frontierEntry{node: next, depth: cur.depth + 1, path: path})
		}
	}
	logging.GraphDebug("Traverse %s via %s/%s depth<=%d: %d nodes",
		start, edgeType, dir, depth, len(out))
	return out, nil
}

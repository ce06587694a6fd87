package tools

import (
	"context"

	"memoryd/internal/types"
)

func registerGraphTools(r *Registry, d Deps) {
	r.MustRegister(&Tool{
		Name:        "create_edge",
		Description: "Link two memory nodes with a typed edge. depends_on edges that would close a cycle are rejected.",
		Category:    CategoryGraph,
		Schema: Schema{
			Required: []string{"from", "to", "type"},
			Properties: map[string]Property{
				"tenant_id":  {Type: "string"},
				"from":       {Type: "string"},
				"to":         {Type: "string"},
				"type":       {Type: "string", Enum: []any{"parent_of", "child_of", "references", "created_by", "related_to", "depends_on"}},
				"properties": {Type: "object"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Graph.CreateEdge(ctx, args.String("tenant_id"),
				args.String("from"), args.String("to"),
				types.EdgeType(args.String("type")), args.Map("properties"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_edges",
		Description: "List edges touching a node, by direction and optional types.",
		Category:    CategoryGraph,
		Schema: Schema{
			Required: []string{"node"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"node":      {Type: "string"},
				"direction": {Type: "string", Default: "both", Enum: []any{"in", "out", "both"}},
				"types":     {Type: "array", Items: &Items{Type: "string"}},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			var edgeTypes []types.EdgeType
			for _, t := range args.Strings("types") {
				edgeTypes = append(edgeTypes, types.EdgeType(t))
			}
			return d.Graph.GetEdges(args.String("tenant_id"), args.String("node"),
				types.Direction(args.String("direction")), edgeTypes)
		},
	})

	r.MustRegister(&Tool{
		Name:        "traverse",
		Description: "Breadth-first walk from a node along one edge type, up to the depth cap (5). Truncates silently.",
		Category:    CategoryGraph,
		Schema: Schema{
			Required: []string{"node", "type"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"node":      {Type: "string"},
				"type":      {Type: "string"},
				"direction": {Type: "string", Default: "out"},
				"depth":     {Type: "integer", Default: 5},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Graph.Traverse(args.String("tenant_id"), args.String("node"),
				types.EdgeType(args.String("type")),
				types.Direction(args.String("direction")),
				args.Int("depth", 0))
		},
	})

	r.MustRegister(&Tool{
		Name:        "update_edge_properties",
		Description: "Shallow-merge a patch into an edge's properties. A null value deletes the key.",
		Category:    CategoryGraph,
		Schema: Schema{
			Required: []string{"edge_id", "patch"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"edge_id":   {Type: "string"},
				"patch":     {Type: "object"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Graph.UpdateEdgeProperties(ctx, args.String("tenant_id"),
				args.String("edge_id"), args.Map("patch"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "delete_edge",
		Description: "Remove one edge by id.",
		Category:    CategoryGraph,
		Schema: Schema{
			Required: []string{"edge_id"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"edge_id":   {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			if err := d.Graph.DeleteEdge(ctx, args.String("tenant_id"), args.String("edge_id")); err != nil {
				return nil, err
			}
			return map[string]any{"deleted": true}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_project_tasks",
		Description: "Project a node's parent_of children onto a Kanban board grouped by status.",
		Category:    CategoryGraph,
		Schema: Schema{
			Required: []string{"project_node"},
			Properties: map[string]Property{
				"tenant_id":    {Type: "string"},
				"project_node": {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Graph.ProjectTasks(args.String("tenant_id"), args.String("project_node"))
		},
	})
}

package tools

import (
	"context"
	"time"

	"memoryd/internal/ids"
	"memoryd/internal/store"
	"memoryd/internal/types"
)

func registerTaskTools(r *Registry, d Deps) {
	r.MustRegister(&Tool{
		Name:        "upsert_task",
		Description: "Create a task or update an existing one by id.",
		Category:    CategoryTask,
		Schema: Schema{
			Required: []string{"title"},
			Properties: map[string]Property{
				"tenant_id":  {Type: "string"},
				"task_id":    {Type: "string", Description: "Omit to create"},
				"title":      {Type: "string"},
				"status":     {Type: "string", Default: "open", Enum: []any{"backlog", "open", "doing", "review", "blocked", "done"}},
				"details":    {Type: "string"},
				"priority":   {Type: "integer", Default: 0},
				"assignee":   {Type: "string"},
				"project":    {Type: "string"},
				"session_id": {Type: "string"},
				"refs":       {Type: "array", Items: &Items{Type: "string"}},
				"blocked_by": {Type: "array", Items: &Items{Type: "string"}},
				"progress":   {Type: "number"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			now := time.Now().UTC()
			task := &types.Task{
				ID:        args.String("task_id"),
				Tenant:    args.String("tenant_id"),
				Status:    types.TaskStatus(args.String("status")),
				Title:     args.String("title"),
				Details:   args.String("details"),
				Refs:      args.Strings("refs"),
				Priority:  args.Int("priority", 0),
				BlockedBy: args.Strings("blocked_by"),
				Progress:  args.Float("progress", 0),
				Assignee:  args.String("assignee"),
				Project:   args.String("project"),
				Session:   args.String("session_id"),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if task.ID == "" {
				task.ID = ids.New(ids.PrefixTask)
			}
			if task.Status == "" {
				task.Status = types.TaskOpen
			}
			if !task.Status.Valid() {
				return nil, types.InvalidInputf("task status %q unknown", task.Status)
			}
			if err := d.Store.UpsertTask(task); err != nil {
				return nil, err
			}
			return task, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_task",
		Description: "Fetch one task by id.",
		Category:    CategoryTask,
		Schema: Schema{
			Required: []string{"task_id"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"task_id":   {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Store.GetTask(args.String("tenant_id"), args.String("task_id"))
		},
	})

	r.MustRegister(&Tool{
		Name:        "list_tasks",
		Description: "List tasks, highest priority first.",
		Category:    CategoryTask,
		Schema: Schema{
			Required: []string{},
			Properties: map[string]Property{
				"tenant_id":  {Type: "string"},
				"status":     {Type: "string"},
				"project":    {Type: "string"},
				"session_id": {Type: "string"},
				"assignee":   {Type: "string"},
				"limit":      {Type: "integer", Default: 100},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			return d.Store.ListTasks(args.String("tenant_id"), store.TaskFilter{
				Status:   types.TaskStatus(args.String("status")),
				Project:  args.String("project"),
				Session:  args.String("session_id"),
				Assignee: args.String("assignee"),
				Limit:    args.Int("limit", 100),
			})
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_project_summary",
		Description: "Aggregate a project's tasks: counts per status, mean progress, and the blocked set.",
		Category:    CategoryTask,
		Schema: Schema{
			Required: []string{"project"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"project":   {Type: "string"},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			tasks, err := d.Store.ListTasks(args.String("tenant_id"), store.TaskFilter{
				Project: args.String("project"),
				Limit:   1000,
			})
			if err != nil {
				return nil, err
			}

			byStatus := map[string]int{}
			var blocked []string
			var progress float64
			var done int
			for _, task := range tasks {
				byStatus[string(task.Status)]++
				progress += task.Progress
				if task.Status == types.TaskDone {
					done++
				}
				if task.Status == types.TaskBlocked || len(task.BlockedBy) > 0 {
					blocked = append(blocked, task.ID)
				}
			}
			summary := map[string]any{
				"project":     args.String("project"),
				"total":       len(tasks),
				"by_status":   byStatus,
				"done":        done,
				"blocked_ids": blocked,
			}
			if len(tasks) > 0 {
				summary["mean_progress"] = progress / float64(len(tasks))
			}
			return summary, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "get_task_dependencies",
		Description: "Walk depends_on edges from a task: what it depends on (downstream) and what depends on it (upstream).",
		Category:    CategoryTask,
		Schema: Schema{
			Required: []string{"task_id"},
			Properties: map[string]Property{
				"tenant_id": {Type: "string"},
				"task_id":   {Type: "string"},
				"depth":     {Type: "integer", Default: 5},
			},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			tenant := args.String("tenant_id")
			taskID := args.String("task_id")
			depth := args.Int("depth", 0)
			dependsOn, err := d.Graph.Traverse(tenant, taskID, types.EdgeDependsOn, types.DirectionOut, depth)
			if err != nil {
				return nil, err
			}
			dependedBy, err := d.Graph.Traverse(tenant, taskID, types.EdgeDependsOn, types.DirectionIn, depth)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"task_id":       taskID,
				"depends_on":    dependsOn,
				"depended_on_by": dependedBy,
			}, nil
		},
	})
}

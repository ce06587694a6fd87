package graph

import (
	"sort"

	"memoryd/internal/types"
)

// Board statuses for the project projection.
const (
	BoardTodo  = "todo"
	BoardDoing = "doing"
	BoardDone  = "done"
)

// createdAtFormat is fixed-width so string comparison matches time order.
const createdAtFormat = "2006-01-02T15:04:05.000000Z07:00"

// ProjectTask is one child of a project node placed on the board.
type ProjectTask struct {
	NodeID    string `json:"node_id"`
	Kind      string `json:"kind"`
	Title     string `json:"title,omitempty"`
	Status    string `json:"status"`
	Priority  int    `json:"priority"`
	CreatedAt string `json:"created_at"`
}

// ProjectBoard groups a project's children by board status.
type ProjectBoard struct {
	Todo  []ProjectTask `json:"todo"`
	Doing []ProjectTask `json:"doing"`
	Done  []ProjectTask `json:"done"`
}

// ProjectTasks finds the children of a project node via parent_of edges and
// groups them into a Kanban board. Status comes from the edge's
// properties.status when set, otherwise from the child's task row; each group
// orders by priority then creation time.
func (s *Service) ProjectTasks(tenant, projectNode string) (*ProjectBoard, error) {
	edges, err := s.store.GetEdges(tenant, projectNode, types.DirectionOut, []types.EdgeType{types.EdgeParentOf})
	if err != nil {
		return nil, err
	}

	var all []ProjectTask
	for _, e := range edges {
		pt := ProjectTask{
			NodeID:    e.ToNode,
			Status:    BoardTodo,
			CreatedAt: e.CreatedAt.Format(createdAtFormat),
		}
		if kind, err := s.store.NodeKind(tenant, e.ToNode); err == nil {
			pt.Kind = kind
		}
		if pt.Kind == "task" {
			if task, err := s.store.GetTask(tenant, e.ToNode); err == nil {
				pt.Title = task.Title
				pt.Priority = task.Priority
				pt.Status = boardStatus(task.Status)
				pt.CreatedAt = task.CreatedAt.Format(createdAtFormat)
			}
		}
		if st, ok := e.Properties["status"].(string); ok && validBoardStatus(st) {
			pt.Status = st
		}
		if pr, ok := e.Properties["priority"].(float64); ok {
			pt.Priority = int(pr)
		}
		all = append(all, pt)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		return all[i].CreatedAt < all[j].CreatedAt
	})

	board := &ProjectBoard{}
	for _, pt := range all {
		switch pt.Status {
		case BoardDoing:
			board.Doing = append(board.Doing, pt)
		case BoardDone:
			board.Done = append(board.Done, pt)
		default:
			board.Todo = append(board.Todo, pt)
		}
	}
	return board, nil
}

// boardStatus projects the task lifecycle onto the three board columns.
func boardStatus(s types.TaskStatus) string {
	switch s {
	case types.TaskDoing, types.TaskReview, types.TaskBlocked:
		return BoardDoing
	case types.TaskDone:
		return BoardDone
	}
	return BoardTodo
}

func validBoardStatus(s string) bool {
	return s == BoardTodo || s == BoardDoing || s == BoardDone
}

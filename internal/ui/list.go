package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/list"

	"github.com/repteam/rep/internal/tasks"
)

var _ list.Item = taskItem{}

// TaskFunc runs one data task with the given options.
type TaskFunc func(ctx context.Context, opts tasks.TaskOptions) (*tasks.TaskResult, error)

// Task is a runnable data task shown in the picker.
type Task struct {
	Name        string
	Description string
	Run         TaskFunc
}

// taskItem wraps [Task] to implement [list.Item].
type taskItem struct {
	task Task
}

func (i taskItem) FilterValue() string { return i.task.Name }
func (i taskItem) Title() string       { return i.task.Name }
func (i taskItem) Description() string { return i.task.Description }

func taskItems(ts []Task) []list.Item {
	items := make([]list.Item, len(ts))
	for i, t := range ts {
		items[i] = taskItem{task: t}
	}
	return items
}

package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/repteam/rep/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgTaskComplete
)

type taskOutcome struct {
	result *tasks.TaskResult
	err    error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// taskCompleteMsg is the constructor for [MsgTaskComplete]
func taskCompleteMsg(result *tasks.TaskResult, err error) Msg {
	return Msg{kind: MsgTaskComplete, data: taskOutcome{result: result, err: err}}
}

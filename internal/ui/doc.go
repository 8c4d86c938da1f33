// Package ui renders terminal output for the rep CLI.
//
// Reports ([RenderTaskResult], [RenderRuns], [RenderHandoffs], [RenderDiagnose]) are plain
// strings styled with lipgloss and safe to print in scripts.
//
// The interactive task view is a bubbletea [Model] with four states:
//  1. [PickView] : choose a data task from a list
//  2. [ConfirmView] : run it for real or as a dry run
//  3. [RunView] : spinner, progress bar and the latest [tasks.ProgressUpdate]
//  4. [ResultView] : the task result
//
// [NewRunModel] starts directly in RunView for a single task. Progress arrives over the channel
// in [tasks.TaskOptions] and the outcome over a second channel, both read by one tea.Cmd at a time.
// ctrl+c during a run cancels the task context and waits for the task to return.
package ui

package ui

import (
	"github.com/desertthunder/hitscan/internal/tasks"
)

type progressUpdateMsg tasks.ProgressUpdate

type collectDoneMsg struct {
	result *tasks.CollectResult
	err    error
}

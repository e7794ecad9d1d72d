package ui

import (
	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/tasks"
)

// progressUpdateMsg carries one engine progress event into the update loop
type progressUpdateMsg tasks.ProgressUpdate

// runCompleteMsg is sent once the engine returns
type runCompleteMsg struct {
	report *models.RunReport
	err    error
}

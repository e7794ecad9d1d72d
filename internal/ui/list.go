package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/tidex/internal/models"
)

var _ list.Item = resultItem{}

// resultItem wraps [models.PlaylistResult] to implement [list.Item].
type resultItem struct {
	result models.PlaylistResult
}

func (i resultItem) FilterValue() string { return i.result.Name }

func (i resultItem) Title() string {
	if i.result.Err != nil {
		return "✗ " + i.result.Name
	}
	return "✓ " + i.result.Name
}

func (i resultItem) Description() string {
	r := i.result
	if r.Err != nil {
		return fmt.Sprintf("%s • %v", r.Outcome, r.Err)
	}

	parts := []string{string(r.Outcome), fmt.Sprintf("%d expected", r.Expected), fmt.Sprintf("+%d added", r.Added)}
	if n := len(r.Blacklisted); n > 0 {
		parts = append(parts, fmt.Sprintf("%d unavailable", n))
	}
	if r.Verified != nil && !*r.Verified {
		parts = append(parts, "mismatch")
	}
	return strings.Join(parts, " • ")
}

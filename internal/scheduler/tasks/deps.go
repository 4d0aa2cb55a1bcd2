// Package tasks implements the scheduled maintenance tasks of groupsift:
// database upkeep and stale message purging.
package tasks

import (
	"log/slog"

	"github.com/benzvi/groupsift/internal/config"
	"github.com/benzvi/groupsift/internal/database"
)

// TaskDeps contains the dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
}

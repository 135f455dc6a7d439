package cmd

import (
	"strings"

	"github.com/onios/onid/pkg/persistence"
	"github.com/onios/onid/pkg/persistence/file"
	"github.com/onios/onid/pkg/persistence/memory"
)

// NewPersistence picks the workflow store backend from the database URL
// scheme: "file://<dir>" for the on-disk store, anything else for the
// in-memory one.
func NewPersistence(databaseURL string, logLimit int) persistence.WorkflowStore {
	provider, rest := parseDatabaseURL(databaseURL)

	switch provider {
	case "file":
		return file.NewStore(rest, logLimit)
	default:
		return memory.NewStore(logLimit)
	}
}

func parseDatabaseURL(databaseURL string) (string, string) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return "memory", ""
	}

	return provider, rest
}

// Package cmd provides the shared composition of the onid and oni binaries:
// store, bus, node registry and system command wiring.
package cmd

import (
	"log/slog"

	"github.com/onios/onid/pkg/registry"
)

// NewNodeRegistry builds a node registry with every built-in node type.
func NewNodeRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	return reg
}

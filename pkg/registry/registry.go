// Package registry provides node factory registration and config validation
// for the workflow engine.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/onios/onid/pkg/protocol"
)

var ErrNodeNotRegistered = errors.New("not registered")

type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	factories map[string]protocol.NodeFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "node_registry"),
		factories: make(map[string]protocol.NodeFactory),
	}
}

func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
}

// CreateNode instantiates a node of the given type from its configuration.
func (r *Registry) CreateNode(ctx context.Context, nodeType, id string, config map[string]any) (protocol.Node, error) {
	r.mu.RLock()
	factory, ok := r.factories[nodeType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("node type '%s' %w", nodeType, ErrNodeNotRegistered)
	}

	return factory.Create(ctx, id, config)
}

// GetAvailableNodes returns all registered node factories sorted by ID.
func (r *Registry) GetAvailableNodes() []protocol.NodeFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]protocol.NodeFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		factories = append(factories, factory)
	}

	sort.Slice(factories, func(i, j int) bool {
		return factories[i].ID() < factories[j].ID()
	})

	return factories
}

// Schema returns the configuration schema for a node type.
func (r *Registry) Schema(nodeType string) (map[string]any, error) {
	r.mu.RLock()
	factory, ok := r.factories[nodeType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("node type '%s' %w", nodeType, ErrNodeNotRegistered)
	}

	return factory.Schema(), nil
}

// ValidateNodeConfig checks a node configuration against its type's schema.
func (r *Registry) ValidateNodeConfig(nodeType string, config map[string]any) error {
	schema, err := r.Schema(nodeType)
	if err != nil {
		return err
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate config for node type '%s': %w", nodeType, err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("invalid config for node type '%s': %s", nodeType, strings.Join(descriptions, "; "))
	}

	return nil
}

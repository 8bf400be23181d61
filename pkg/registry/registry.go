// Package registry declares the external tool-catalog collaborator the
// core consults on admission. Lookup, OpenAPI parsing and tool-instance
// generation happen outside this module; the fabric only needs the
// resulting ToolDescriptor.
package registry

import (
	"context"
	"errors"

	"github.com/forgelabs/fabric/pkg/types"
)

// ErrNotFound is returned by Registry.GetTool when no descriptor matches.
var ErrNotFound = errors.New("registry: tool not found")

// Registry looks up a ToolDescriptor by id and optional version. It is a
// capability interface: the fabric depends on this contract, never on a
// concrete catalog implementation.
type Registry interface {
	GetTool(ctx context.Context, id types.ToolID, version string) (*types.ToolDescriptor, error)
}

// Static is a fixed, in-memory Registry useful for tests and the
// cmd/fabricd demo binary, where a real catalog service is out of scope.
type Static struct {
	tools map[types.ToolID]*types.ToolDescriptor
}

// NewStatic builds a Static registry from a set of descriptors keyed by
// their own ToolID.
func NewStatic(descriptors ...*types.ToolDescriptor) *Static {
	s := &Static{tools: make(map[types.ToolID]*types.ToolDescriptor, len(descriptors))}
	for _, d := range descriptors {
		s.tools[d.ToolID] = d
	}
	return s
}

func (s *Static) GetTool(_ context.Context, id types.ToolID, version string) (*types.ToolDescriptor, error) {
	d, ok := s.tools[id]
	if !ok {
		return nil, ErrNotFound
	}
	if version != "" && d.Version != "" && version != d.Version {
		return nil, ErrNotFound
	}
	return d, nil
}

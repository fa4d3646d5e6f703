package services

import (
	"context"

	"connect-go/internal/storage"
)

// GraphMutator 是 user_connections 的唯一写入者，保证连接关系双向对称。
type GraphMutator struct {
	connections storage.ConnectionRepository
}

// NewGraphMutator binds a mutator to a repository. Inside a transaction pass a
// repository built on the tx handle so the edges commit with the request.
func NewGraphMutator(connections storage.ConnectionRepository) *GraphMutator {
	return &GraphMutator{connections: connections}
}

// Connect inserts both directions of the a-b edge. Existing edges are left
// untouched, so calling it again is a no-op.
func (g *GraphMutator) Connect(ctx context.Context, a, b uint) error {
	if a == b {
		return ErrSelfConnection
	}
	if err := g.connections.AddConnection(ctx, a, b); err != nil {
		return storeErr("add connection", err)
	}
	if err := g.connections.AddConnection(ctx, b, a); err != nil {
		return storeErr("add connection", err)
	}
	return nil
}

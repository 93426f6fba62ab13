package haddock

import (
	"context"

	"github.com/grindlemire/graft"
	"go.keelbuild.dev/keel/internal/core/ports"
)

const NodeID graft.ID = "adapter.haddock_store"

func init() {
	graft.Register(graft.Node[ports.HaddockStore]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.HaddockStore, error) {
			return New(), nil
		},
	})
}

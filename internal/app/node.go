package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.keelbuild.dev/keel/internal/adapters/config"                 //nolint:depguard // wired in app layer
	"go.keelbuild.dev/keel/internal/adapters/haddock"                //nolint:depguard // wired in app layer
	"go.keelbuild.dev/keel/internal/adapters/logger"                 //nolint:depguard // wired in app layer
	"go.keelbuild.dev/keel/internal/adapters/telemetry/progrock"     //nolint:depguard // wired in app layer
	"go.keelbuild.dev/keel/internal/adapters/toolchain"              //nolint:depguard // wired in app layer
	"go.keelbuild.dev/keel/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			toolchain.NodeID,
			progrock.NodeID,
			logger.NodeID,
			haddock.NodeID,
		},
		Run: func(ctx context.Context) (*App, error) {
			loader, err := graft.Dep[ports.ConfigLoader](ctx)
			if err != nil {
				return nil, err
			}
			tc, err := graft.Dep[ports.Toolchain](ctx)
			if err != nil {
				return nil, err
			}
			tel, err := graft.Dep[ports.Telemetry](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			hd, err := graft.Dep[ports.HaddockStore](ctx)
			if err != nil {
				return nil, err
			}
			return New(loader, tc, tel, log, hd), nil
		},
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			a, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewComponents(a, log), nil
		},
	})
}

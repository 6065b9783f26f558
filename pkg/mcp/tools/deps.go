package tools

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/services"
)

// Pinger reports whether the datasource is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds what the MCP tools need from the rest of the service.
type Deps struct {
	Chat      services.ChatService
	Shortlist services.ShortlistOptions
	DB        Pinger
	Version   string
	Logger    *zap.Logger
}

func (d *Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/yola1107/parlor/internal/biz"
	"github.com/yola1107/parlor/internal/biz/engine"
	"github.com/yola1107/parlor/internal/conf"
	"github.com/yola1107/parlor/internal/data"
	"github.com/yola1107/parlor/internal/server"
	"github.com/yola1107/parlor/internal/service"
	zlog "github.com/yola1107/parlor/library/log/zap"
)

// wireApp init kratos application.
func wireApp(*conf.Bootstrap, *zlog.Logger) (*application, func(), error) {
	panic(wire.Build(
		wire.FieldsOf(new(*conf.Bootstrap), "Server", "Engine", "Games", "Economy", "Data"),
		wire.FieldsOf(new(*conf.Server), "HTTP"),
		wire.Bind(new(log.Logger), new(*zlog.Logger)),
		wire.Bind(new(engine.Presenter), new(*server.Hub)),
		server.ProviderSet, data.ProviderSet, biz.ProviderSet, service.ProviderSet,
		meterProvider, healthChecks, newApp,
	))
}

package cmd

import (
	"log/slog"

	"github.com/chainpress/chainpress/pkg/actions/httprequest"
	logaction "github.com/chainpress/chainpress/pkg/actions/log"
	"github.com/chainpress/chainpress/pkg/actions/transform"
	"github.com/chainpress/chainpress/pkg/registry"
)

// NewRegistry builds the registry with all built-in trigger definitions,
// services and business actions installed.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	registry.RegisterBuiltinTriggers(reg)
	registry.RegisterBuiltinServices(reg)

	reg.RegisterAction("log", logaction.Factory)
	reg.RegisterAction("httprequest", httprequest.Factory)
	reg.RegisterAction("transform", transform.Factory)

	return reg
}

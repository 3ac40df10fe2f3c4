package modules

import (
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/config"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/inspire"
	"github.com/Smart-Home-Shop/ha-inspire-integration/pkg/mqtt"
)

// Interface for the different modules being run by the controller.
type Module interface {
	Start() error
	Stop() error
}

type ModuleBuilder func(mqtt.Client, inspire.Client, *config.Config) Module

// Register stores a builder function into the registry for external
// access. Register() can be called from init() on a module in this
// package and will automatically register a module.
func Register(name string, builder ModuleBuilder) {
	Modules[name] = builder
}

var Modules = map[string]ModuleBuilder{}

package app

import (
	"github.com/vk/dlsgrid/internal/handlers"
	"github.com/vk/dlsgrid/modules/env_vars"
	"github.com/vk/dlsgrid/modules/http_client"
	"github.com/vk/dlsgrid/modules/print"
	"github.com/vk/dlsgrid/modules/s3"
	"github.com/vk/dlsgrid/modules/socketio"
)

// coreModules is the definitive list of all modules that are compiled into
// the dlsgrid binary.
var coreModules = []handlers.Module{
	&env_vars.Module{Prefix: "DLSGRID_"},
	&print.Module{},
	&s3.Module{},
	&http_client.Module{},
	&socketio.Module{},
}

package headersync

import (
	"github.com/featherchain/featherd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("HSYN")

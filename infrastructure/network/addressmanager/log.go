package addressmanager

import (
	"github.com/featherchain/featherd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("ADXR")

package headersstore

import (
	"github.com/featherchain/featherd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("HDRS")

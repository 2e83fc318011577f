package ping

import (
	"github.com/featherchain/featherd/infrastructure/logger"
	"github.com/featherchain/featherd/util/panics"
)

var log = logger.RegisterSubSystem("PING")
var spawn = panics.GoroutineWrapperFunc(log)

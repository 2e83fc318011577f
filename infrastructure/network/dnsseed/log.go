package dnsseed

import (
	"github.com/featherchain/featherd/infrastructure/logger"
	"github.com/featherchain/featherd/util/panics"
)

var log = logger.RegisterSubSystem("SEED")
var spawn = panics.GoroutineWrapperFunc(log)

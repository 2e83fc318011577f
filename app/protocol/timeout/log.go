package timeout

import (
	"github.com/featherchain/featherd/infrastructure/logger"
	"github.com/featherchain/featherd/util/panics"
)

var log = logger.RegisterSubSystem("TMRG")
var spawn = panics.GoroutineWrapperFunc(log)

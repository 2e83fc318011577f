package dispatcher

import (
	"github.com/featherchain/featherd/infrastructure/logger"
	"github.com/featherchain/featherd/util/panics"
)

var log = logger.RegisterSubSystem("DISP")
var spawn = panics.GoroutineWrapperFunc(log)

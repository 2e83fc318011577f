package connectivity

import (
	"github.com/featherchain/featherd/infrastructure/logger"
	"github.com/featherchain/featherd/util/panics"
)

var log = logger.RegisterSubSystem("CNTY")
var spawn = panics.GoroutineWrapperFunc(log)

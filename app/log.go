package app

import (
	"github.com/featherchain/featherd/infrastructure/logger"
	"github.com/featherchain/featherd/util/panics"
)

var log = logger.RegisterSubSystem("FTHD")
var spawn = panics.GoroutineWrapperFunc(log)

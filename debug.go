package gocw

import (
	"os"
	"sync"
)

var (
	debugOnce   sync.Once
	debugFromEnv bool
)

// DebugFromEnv reports whether GOCW_DEBUG is set to a non-empty value,
// reading the environment exactly once per process (spec.md §6:
// "Optional debug flags... sourced from an environment variable on
// first query"). The memoized value seeds each Instance's own debug
// flag at construction; per-instance state is then free to diverge via
// Instance.SetDebug without mutating this process-wide default (spec.md
// §9: "Global mutable flags... live on the instance, not in process-wide
// storage").
func DebugFromEnv() bool {
	debugOnce.Do(func() {
		debugFromEnv = os.Getenv("GOCW_DEBUG") != ""
	})
	return debugFromEnv
}

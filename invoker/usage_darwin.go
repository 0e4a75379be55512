//go:build darwin

package invoker

import (
	"os"
	"syscall"

	"github.com/pome-lang/pome-harness/types"
)

// usageOf reads the rusage of the terminated child itself. Darwin reports
// ru_maxrss in bytes.
func usageOf(state *os.ProcessState) *types.ResourceUsage {
	if state == nil {
		return nil
	}
	usage := &types.ResourceUsage{
		UserTime:   state.UserTime(),
		SystemTime: state.SystemTime(),
	}
	if ru, ok := state.SysUsage().(*syscall.Rusage); ok && ru != nil {
		usage.MaxRSSBytes = int64(ru.Maxrss)
	}
	return usage
}

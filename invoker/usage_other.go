//go:build !linux && !darwin

package invoker

import (
	"os"

	"github.com/pome-lang/pome-harness/types"
)

// usageOf reports CPU times only; peak memory is not portable here.
func usageOf(state *os.ProcessState) *types.ResourceUsage {
	if state == nil {
		return nil
	}
	return &types.ResourceUsage{
		UserTime:   state.UserTime(),
		SystemTime: state.SystemTime(),
	}
}

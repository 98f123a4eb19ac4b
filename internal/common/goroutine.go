// -----------------------------------------------------------------------
// Panic recovery for pipeline goroutines
// -----------------------------------------------------------------------

package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
)

// RecoverAsError converts a panic in the calling goroutine into an error.
// It must be deferred directly:
//
//	defer common.RecoverAsError(logger, "worker", &err)
func RecoverAsError(logger arbor.ILogger, name string, err *error) {
	r := recover()
	if r == nil {
		return
	}

	if logger != nil {
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", GetStackTrace()).
			Msg("Recovered from panic")
	}

	if err != nil {
		*err = fmt.Errorf("panic in %s: %v", name, r)
	}
}

package lifecycle

import "errors"

// ErrPartialFailure marks an account whose cleanup left some dependent
// records behind. The wrapping error names the failing step.
var ErrPartialFailure = errors.New("some dependent records could not be deleted")

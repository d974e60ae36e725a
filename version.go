package conductor

import (
	"fmt"
	"runtime"
)

// Version is the engine release this module builds as.
const Version = "0.1.0-alpha"

// VersionString reports the engine version together with the Go runtime
// it was built against, for audit-log headers and bug reports.
func VersionString() string {
	return fmt.Sprintf("conductor %s (%s %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

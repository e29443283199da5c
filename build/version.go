package build

import "fmt"

const (
	// AppMajor defines the major version of this binary.
	AppMajor uint = 1

	// AppMinor defines the minor version of this binary.
	AppMinor uint = 9

	// AppPatch defines the application patch for this binary.
	AppPatch uint = 0

	// Vendor is reported in the device features.
	Vendor = "Skycoin Foundation"

	// Model is reported in the device features.
	Model = "1"
)

// Commit stores the current commit of this build, which includes the most
// recent tag, the number of commits since that tag (if non-zero), the commit
// hash, and a dirty marker. This should be set using the -ldflags during
// compilation.
var Commit string

// Version returns the application version as a properly formed string.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", AppMajor, AppMinor, AppPatch)
}

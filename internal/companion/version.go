package companion

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// MinServerVersion is the oldest companion release mnemo is tested against.
const MinServerVersion = "0.4.0"

// versionWarning returns a warning when version is older than MinServerVersion.
// Unparseable versions, such as development builds, are accepted silently.
func versionWarning(version string) string {
	if version == "" {
		return ""
	}

	current, err := semver.NewVersion(version)
	if err != nil {
		return ""
	}

	minimum := semver.MustParse(MinServerVersion)
	if current.LessThan(minimum) {
		return fmt.Sprintf("companion %s is older than the supported minimum %s; upgrade mnemo-mcp", current, minimum)
	}

	return ""
}

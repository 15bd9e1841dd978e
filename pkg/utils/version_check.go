package utils

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

const MinBackendVersion = "v1.0.0"

// CheckBackendVersion reports an error if the backend version is older than
// minVersion. An empty or invalid backend version is accepted; the backend
// does not always report one.
func CheckBackendVersion(backendVersion, minVersion string) error {
	if backendVersion == "" {
		return nil
	}
	toCheck := canonical(backendVersion)
	if !semver.IsValid(toCheck) {
		return nil
	}
	required := canonical(minVersion)
	if !semver.IsValid(required) {
		required = MinBackendVersion
	}
	if semver.Compare(toCheck, required) < 0 {
		return fmt.Errorf("backend version %s is older than required %s", toCheck, required)
	}
	return nil
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

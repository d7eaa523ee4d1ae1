package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"tscommunity/lib/telemetry"
)

type ServiceParams struct {
	Name string
	// if specified, it is written to a temporary cookie bundle
	CookieBundle string
}

type ServiceResult struct {
	// empty when no bundle was asked for
	CookieFile string
}

func SetupService(t testing.TB, params ServiceParams) (ServiceResult, func()) {
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))

	var result ServiceResult
	if params.CookieBundle != "" {
		result.CookieFile = filepath.Join(t.TempDir(), "cookies.json")
		err := os.WriteFile(result.CookieFile, []byte(params.CookieBundle), 0600)
		if err != nil {
			t.Fatal(err)
		}
	}
	return result, cleanup
}

// ReadFile returns the contents of a test fixture, failing the test if it
// cannot be read.
func ReadFile(t testing.TB, elem ...string) string {
	contents, err := os.ReadFile(filepath.Join(elem...))
	if err != nil {
		t.Fatal(err)
	}
	return string(contents)
}

package engine

import (
	"testing"

	"rostercore/testutil"
)

func TestEngineDoesNotImportInfraBackends(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden,
		"engine depends on collaborator interfaces, not infra backends")
}

package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestOnlyBlobPackageImportsInfra pins the backend packages under
// internal/infra/blob to this facade: every other package must hold a
// blob.Store and stay ignorant of which backend is behind it.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	const (
		infraPrefix  = "lifelab/internal/infra/blob"
		facadePrefix = "lifelab/internal/blob"
	)

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "lifelab/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		if strings.HasPrefix(pkg.PkgPath, facadePrefix) || strings.HasPrefix(pkg.PkgPath, infraPrefix) {
			continue
		}
		for importPath := range pkg.Imports {
			if importPath == infraPrefix || strings.HasPrefix(importPath, infraPrefix+"/") {
				violations = append(violations, pkg.PkgPath+" imports "+importPath)
			}
		}
	}

	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("backend import outside the blob facade: %s", v)
	}
}

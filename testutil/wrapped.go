package testutil

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// ModulePath is the import path prefix of this module.
const ModulePath = "profileflow"

// AssertInfraWrapped loads every package of the module, tests included, and
// fails if a package outside wrapper imports anything under infra. Packages
// under infra itself may import each other.
func AssertInfraWrapped(t testing.TB, infra, wrapper string) {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, ModulePath+"/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	failIfDirectViolations(t, "only "+wrapper+" may import "+infra, wrappedViolations(pkgs, infra, wrapper))
}

func wrappedViolations(pkgs []*packages.Package, infra, wrapper string) []string {
	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if underPath(pkg.PkgPath, wrapper) || underPath(pkg.PkgPath, infra) {
			continue
		}
		for importPath := range pkg.Imports {
			if underPath(importPath, infra) {
				seen[pkg.PkgPath+": "+importPath] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// underPath reports whether importPath is prefix or a package below it. Test
// variants ("pkg [pkg.test]", "pkg_test") of a path count as the path itself.
func underPath(importPath, prefix string) bool {
	importPath, _, _ = strings.Cut(importPath, " ")
	importPath = strings.TrimSuffix(importPath, "_test")
	return importPath == prefix || strings.HasPrefix(importPath, prefix+"/")
}

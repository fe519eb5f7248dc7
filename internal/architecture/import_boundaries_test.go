package architecture_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const modulePath = "ruddy"

type layerRule struct {
	sourcePrefix string
	forbidden    []string
	hint         string
}

var rules = []layerRule{
	{
		sourcePrefix: modulePath + "/internal/domain",
		forbidden:    []string{modulePath + "/internal", modulePath + "/pkg"},
		hint:         "domain imports nothing from the module",
	},
	{
		sourcePrefix: modulePath + "/internal/ddl",
		forbidden:    []string{modulePath + "/internal", modulePath + "/pkg"},
		hint:         "ddl renders SQL text only",
	},
	{
		sourcePrefix: modulePath + "/internal/ticket",
		forbidden: []string{
			modulePath + "/internal/engine",
			modulePath + "/internal/flight",
			modulePath + "/internal/client",
			modulePath + "/pkg",
		},
		hint: "ticket depends on domain only",
	},
	{
		sourcePrefix: modulePath + "/internal/locator",
		forbidden: []string{
			modulePath + "/internal/engine",
			modulePath + "/internal/flight",
			modulePath + "/internal/client",
			modulePath + "/pkg",
		},
		hint: "locator depends on domain only",
	},
	{
		sourcePrefix: modulePath + "/internal/engine",
		forbidden: []string{
			modulePath + "/internal/flight",
			modulePath + "/internal/client",
			modulePath + "/internal/middleware",
			modulePath + "/pkg",
		},
		hint: "engine knows nothing about transport",
	},
	{
		sourcePrefix: modulePath + "/internal/middleware",
		forbidden: []string{
			modulePath + "/internal/engine",
			modulePath + "/internal/flight",
			modulePath + "/internal/client",
		},
		hint: "middleware depends on domain and grpc only",
	},
	{
		sourcePrefix: modulePath + "/internal/flight",
		forbidden: []string{
			modulePath + "/internal/client",
			modulePath + "/pkg",
		},
		hint: "the server never imports the client",
	},
	{
		sourcePrefix: modulePath + "/internal/client",
		forbidden: []string{
			modulePath + "/internal/engine",
			modulePath + "/internal/catalog",
			modulePath + "/pkg",
		},
		hint: "the client reaches the engine over the wire only",
	},
}

func TestImportBoundaries(t *testing.T) {
	root := filepath.Join("..", "..")
	files := collectSources(t, root)
	require.NotEmpty(t, files)

	violations := make([]string, 0)
	fset := token.NewFileSet()

	for _, file := range files {
		sourcePkg := packageImportPath(root, file)
		rule, ok := findRule(sourcePkg)
		if !ok {
			continue
		}

		parsed, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
		require.NoErrorf(t, err, "parse imports for %s", file)

		for _, imp := range parsed.Imports {
			importPath := strings.Trim(imp.Path.Value, "\"")
			if importPath == sourcePkg || !hasPathPrefix(importPath, modulePath) {
				continue
			}
			if violatesRule(importPath, rule.forbidden) {
				violations = append(violations,
					sourcePkg+" imports "+importPath+" via "+file+"; "+rule.hint)
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("%s", strings.Join(violations, "\n"))
	}
}

func TestEveryInternalPackageHasRuleOrIsLeaf(t *testing.T) {
	for _, pkg := range []string{"domain", "ddl", "ticket", "locator", "engine", "middleware", "flight", "client"} {
		_, ok := findRule(modulePath + "/internal/" + pkg)
		require.Truef(t, ok, "no rule for %s", pkg)
	}
}

// collectSources returns the non-test Go files under internal/.
func collectSources(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go") {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func packageImportPath(root, file string) string {
	rel, err := filepath.Rel(root, filepath.Dir(file))
	if err != nil {
		return ""
	}
	return modulePath + "/" + filepath.ToSlash(rel)
}

func findRule(sourcePkg string) (layerRule, bool) {
	for _, rule := range rules {
		if hasPathPrefix(sourcePkg, rule.sourcePrefix) {
			return rule, true
		}
	}
	return layerRule{}, false
}

func violatesRule(importPath string, forbidden []string) bool {
	for _, prefix := range forbidden {
		if hasPathPrefix(importPath, prefix) {
			return true
		}
	}
	return false
}

func hasPathPrefix(value, prefix string) bool {
	return value == prefix || strings.HasPrefix(value, prefix+"/")
}

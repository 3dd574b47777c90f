package source

import (
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

// projectMarkers maps a file name to the build tool it identifies.
var projectMarkers = []struct {
	file string
	tool string
}{
	{"go.mod", "go"},
	{"pyproject.toml", "python"},
	{"setup.py", "python"},
}

// DetectLanguageFromExt returns the language name and tree-sitter Language
// for a source file extension. Returns ok=false for non-source files.
func DetectLanguageFromExt(ext string) (langName string, lang *sitter.Language, ok bool) {
	switch ext {
	case ".go":
		return "go", golang.GetLanguage(), true
	case ".py":
		return "python", python.GetLanguage(), true
	default:
		return "", nil, false
	}
}

// IsSource reports whether name has a supported source extension.
func IsSource(name string) bool {
	_, _, ok := DetectLanguageFromExt(path.Ext(name))
	return ok
}

// IsProjectMarker reports whether name is a build file that makes its
// directory a project.
func IsProjectMarker(name string) bool {
	for _, m := range projectMarkers {
		if m.file == name {
			return true
		}
	}
	return false
}

func isTestFile(name string) bool {
	switch path.Ext(name) {
	case ".go":
		return strings.HasSuffix(name, "_test.go")
	case ".py":
		return strings.HasPrefix(name, "test_") || strings.HasSuffix(name, "_test.py")
	}
	return false
}

// skipDir reports directories that never hold packages.
func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	switch name {
	case "node_modules", "vendor", "testdata", "__pycache__":
		return true
	}
	return false
}

// memberQueries select top-level declarations. Capture names become the
// member's symbol kind.
var memberQueries = map[string]string{
	"go": `
(function_declaration name: (identifier) @function)
(method_declaration name: (field_identifier) @method)
(source_file (type_declaration (type_spec name: (type_identifier) @type)))
`,
	"python": `
(module (function_definition name: (identifier) @function))
(module (class_definition name: (identifier) @class))
(module (decorated_definition definition: (function_definition name: (identifier) @function)))
(module (decorated_definition definition: (class_definition name: (identifier) @class)))
`,
}

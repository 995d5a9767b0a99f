//go:build linux

package sandbox

import (
	"strings"

	"github.com/BurntSushi/toml"
)

// languageAliases maps convenience names onto the canonical identifier
// actually present in langs.toml, the way the language image build tool
// resolves "cpp" to the gcc toolchain's key.
var languageAliases = map[string]string{
	"cpp":   "gcc",
	"d":     "ldc",
	"go":    "golang",
	"pypy3": "pypy",
}

type languageTOML struct {
	Source  string   `toml:"source"`
	Compile string   `toml:"compile"`
	Objects []string `toml:"objects"`
	Exec    string   `toml:"exec"`
}

type langsTOML struct {
	Langs map[string]languageTOML `toml:"langs"`
}

// LanguageRegistry is the immutable, load-once mapping from a language
// identifier to its LanguageSpec.
type LanguageRegistry struct {
	specs map[string]LanguageSpec
}

// LoadLanguageRegistry reads langs.toml and builds the registry. It
// performs no further I/O once loaded.
func LoadLanguageRegistry(path string) (*LanguageRegistry, error) {
	var doc langsTOML
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, &Error{Code: ErrInvalidRequest, Message: "load language registry: " + err.Error(), cause: err}
	}

	specs := make(map[string]LanguageSpec, len(doc.Langs))
	for id, lt := range doc.Langs {
		specs[id] = LanguageSpec{
			ID:         id,
			SourceName: lt.Source,
			Compile:    lt.Compile,
			Objects:    lt.Objects,
			Exec:       lt.Exec,
		}
	}
	return &LanguageRegistry{specs: specs}, nil
}

// Lookup resolves id through languageAliases and returns its
// LanguageSpec.
func (r *LanguageRegistry) Lookup(id string) (LanguageSpec, error) {
	canonical, ok := languageAliases[id]
	if !ok {
		canonical = id
	}
	spec, ok := r.specs[canonical]
	if !ok {
		return LanguageSpec{}, &Error{Code: ErrInvalidRequest, Message: "unknown language: " + id}
	}
	return spec, nil
}

// ExpandExec substitutes named placeholders ({input}, {judge},
// {contestant}, ...) in a checker's exec template. Unrecognized
// placeholders are left untouched.
func ExpandExec(template string, placeholders map[string]string) string {
	pairs := make([]string, 0, len(placeholders)*2)
	for k, v := range placeholders {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

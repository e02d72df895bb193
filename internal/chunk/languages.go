package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry manages supported languages and their tree-sitter
// grammars, keyed by both language name and file extension.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with the five AST-chunked
// languages registered.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()
	r.registerJava()
	r.registerRust()

	return r
}

// GetByExtension returns the language configuration for a file extension.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	langName, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}

	config, ok := r.configs[langName]
	return config, ok
}

// GetByName returns the language configuration by name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the tree-sitter grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// SupportedExtensions returns all AST-chunkable file extensions.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

func (r *LanguageRegistry) registerLanguage(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang

	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

func (r *LanguageRegistry) registerGo() {
	config := &LanguageConfig{
		Name:         "go",
		Extensions:   []string{".go"},
		HierarchyTypes: map[string]string{
			"function_declaration": "function ",
			"method_declaration":   "method ",
			"type_declaration":      "type ",
		},
		NameTypes:    []string{"identifier", "field_identifier", "type_identifier"},
		CommentTypes: []string{"comment"},
	}
	r.registerLanguage(config, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	tsConfig := &LanguageConfig{
		Name:       "typescript",
		Extensions: []string{".ts"},
		HierarchyTypes: map[string]string{
			"class_declaration":      "class ",
			"interface_declaration":  "interface ",
			"function_declaration":   "function ",
			"method_definition":      "method ",
			"type_alias_declaration": "type ",
			"enum_declaration":       "enum ",
		},
		NameTypes:    []string{"identifier", "type_identifier", "property_identifier"},
		CommentTypes: []string{"comment"},
	}
	r.registerLanguage(tsConfig, typescript.GetLanguage())

	tsxConfig := &LanguageConfig{
		Name:           "tsx",
		Extensions:     []string{".tsx"},
		HierarchyTypes: tsConfig.HierarchyTypes,
		NameTypes:      tsConfig.NameTypes,
		CommentTypes:   tsConfig.CommentTypes,
	}
	r.registerLanguage(tsxConfig, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	jsConfig := &LanguageConfig{
		Name:       "javascript",
		Extensions: []string{".js", ".mjs", ".cjs"},
		HierarchyTypes: map[string]string{
			"class_declaration":    "class ",
			"function_declaration": "function ",
			"method_definition":    "method ",
		},
		NameTypes:    []string{"identifier", "property_identifier"},
		CommentTypes: []string{"comment"},
	}
	r.registerLanguage(jsConfig, javascript.GetLanguage())

	jsxConfig := &LanguageConfig{
		Name:           "jsx",
		Extensions:     []string{".jsx"},
		HierarchyTypes: jsConfig.HierarchyTypes,
		NameTypes:      jsConfig.NameTypes,
		CommentTypes:   jsConfig.CommentTypes,
	}
	r.registerLanguage(jsxConfig, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	config := &LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		HierarchyTypes: map[string]string{
			"class_definition":    "class ",
			"function_definition": "function ",
		},
		NameTypes:    []string{"identifier"},
		CommentTypes: []string{"comment"},
	}
	r.registerLanguage(config, python.GetLanguage())
}

func (r *LanguageRegistry) registerJava() {
	config := &LanguageConfig{
		Name:       "java",
		Extensions: []string{".java"},
		HierarchyTypes: map[string]string{
			"class_declaration":     "class ",
			"interface_declaration": "interface ",
			"enum_declaration":      "enum ",
			"method_declaration":    "method ",
			"record_declaration":    "record ",
		},
		NameTypes:    []string{"identifier", "type_identifier"},
		CommentTypes: []string{"line_comment", "block_comment"},
	}
	r.registerLanguage(config, java.GetLanguage())
}

func (r *LanguageRegistry) registerRust() {
	config := &LanguageConfig{
		Name:       "rust",
		Extensions: []string{".rs"},
		HierarchyTypes: map[string]string{
			"struct_item":      "struct ",
			"enum_item":        "enum ",
			"trait_item":       "trait ",
			"impl_item":        "impl ",
			"function_item":    "function ",
			"mod_item":         "module ",
		},
		NameTypes:    []string{"identifier", "type_identifier"},
		CommentTypes: []string{"line_comment", "block_comment"},
	}
	r.registerLanguage(config, rust.GetLanguage())
}

// defaultRegistry is the process-wide language registry, populated once at
// init.
var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the process-wide language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}

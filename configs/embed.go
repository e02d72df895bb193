// Package configs provides embedded configuration templates for contextweaver.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they ship inside the binary itself, available in source builds and
// binary releases alike.
//
// Template files:
//   - project-config.example.yaml: project-specific settings (paths, search, embeddings, reranker)
//   - user-config.example.yaml: machine-specific settings shared across projects
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go NewConfig())
//  2. User config (~/.config/contextweaver/config.yaml)
//  3. Project config (.contextweaver.yaml)
//  4. Environment variables (CONTEXTWEAVER_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration,
// created by `contextweaver init --global` at ~/.config/contextweaver/config.yaml.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration,
// created by `contextweaver init` at .contextweaver.yaml in the project root.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

package config

import (
	"github.com/danieljhkim/docplan/internal/scan"
)

// Built-in defaults.
const (
	DefaultSourceRoot   = "."
	DefaultOutputRoot   = "_build"
	DefaultRendererPath = "docrender"
)

// DefaultExclude skips generated link files and editor leftovers.
var DefaultExclude = []string{"_links*", "*~", "*.swp"}

// DefaultKinds classifies sources by file name; order matters.
var DefaultKinds = []KindConfig{
	{Pattern: "gen", Kind: "generator"},
	{Pattern: "*.stpl", Kind: "template"},
	{Pattern: "*.svg", Kind: "vector-image"},
	{Pattern: "*.dot", Kind: "diagram"},
	{Pattern: "*.puml", Kind: "diagram"},
	{Pattern: "*.uml", Kind: "diagram"},
	{Pattern: "index.rest", Kind: "index"},
	{Pattern: "*.rest", Kind: "document"},
}

// DefaultRules derive the standard artifacts. Rules without a command run
// the configured renderer as "<renderer> <format> <source> <target>". Each
// index yields one link file per document family and a tags file; docx and
// pdf exports depend on their own link file.
var DefaultRules = []RuleConfig{
	{Name: "expand", Kind: "template", Artifact: "expanded", Format: "stpl", Target: "{dir}/{stem}"},
	{Name: "svg", Kind: "vector-image", Artifact: "image", Format: "png", Target: "{dir}/{stem}.png",
		Command: []string{"rsvg-convert", "-o", "{target}", "{source}"}},
	{Name: "diagram", Kind: "diagram", Artifact: "image", Format: "png", Target: "{dir}/{stem}.png"},
	{Name: "links-sphinx", Kind: "index", Artifact: "index", Format: "sphinx", Target: "{dir}/_links_sphinx.rst"},
	{Name: "links-docx", Kind: "index", Artifact: "index", Format: "docx", Target: "{dir}/_links_docx.rst"},
	{Name: "links-pdf", Kind: "index", Artifact: "index", Format: "pdf", Target: "{dir}/_links_pdf.rst"},
	{Name: "tags", Kind: "index", Artifact: "index", Format: "tags", Target: "{dir}/.tags"},
	{Name: "html", Kind: "document", Artifact: "rendered-document", Format: "html", Target: "html/{dir}/{stem}.html"},
	{Name: "html-index", Kind: "index", Artifact: "rendered-document", Format: "html", Target: "html/{dir}/index.html"},
	{Name: "epub", Kind: "document", Artifact: "rendered-document", Format: "epub", Target: "epub/{dir}/{stem}.epub"},
	{Name: "latex", Kind: "document", Artifact: "rendered-document", Format: "latex", Target: "latex/{dir}/{stem}.tex"},
	{Name: "docx", Kind: "document", Artifact: "exported-document", Format: "docx", Target: "docx/{dir}/{stem}.docx",
		Command: []string{"pandoc", "{source}", "-o", "{target}", "--resource-path={dir}"}},
	{Name: "pdf", Kind: "document", Artifact: "exported-document", Format: "pdf", Target: "pdf/{dir}/{stem}.pdf",
		Command: []string{"pandoc", "{source}", "-o", "{target}", "--resource-path={dir}"}},
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills every unset value. Lists set in the file replace the
// defaults entirely.
func applyDefaults(cfg *Config) {
	if cfg.SourceRoot == "" {
		cfg.SourceRoot = DefaultSourceRoot
	}
	if cfg.OutputRoot == "" {
		cfg.OutputRoot = DefaultOutputRoot
	}
	if cfg.RendererPath == "" {
		cfg.RendererPath = DefaultRendererPath
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = 1
	}
	if cfg.Exclude == nil {
		cfg.Exclude = append([]string(nil), DefaultExclude...)
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = append([]KindConfig(nil), DefaultKinds...)
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = make([]RuleConfig, len(DefaultRules))
		for i, r := range DefaultRules {
			r.Command = append([]string(nil), r.Command...)
			cfg.Rules[i] = r
		}
	}
	if len(cfg.Scan.Extensions) == 0 {
		cfg.Scan.Extensions = append([]string(nil), scan.DefaultExtensions...)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = string(LogLevelInfo)
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = string(LogFormatText)
	}
}

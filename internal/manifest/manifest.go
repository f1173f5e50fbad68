package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/fsutil"
	"github.com/vk/dlsgrid/internal/handlers"
	"github.com/vk/dlsgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Manifest is the decoded content of every manifest file under a path.
type Manifest struct {
	Hosts     []*Host
	Resources []*Resource
	Groups    []*Group
}

// Host is a `host` block.
type Host struct {
	Name    string   `hcl:"name,label"`
	Address string   `hcl:"address"`
	Port    int      `hcl:"port"`
	Has     []string `hcl:"has,optional"`
}

// Resource is a `resource` block.
type Resource struct {
	Name    string `hcl:"name,label"`
	Factory string `hcl:"factory"`
}

// Group is a `group` block.
type Group struct {
	Name  string  `hcl:"name,label"`
	Spans []*Span `hcl:"span,block"`
}

// Span is a `span` block nested in a group.
type Span struct {
	Name     string   `hcl:"name,label"`
	Method   string   `hcl:"method"`
	Requires []string `hcl:"requires,optional"`
}

// hclManifestFile represents the top-level structure of a manifest file for decoding.
type hclManifestFile struct {
	Hosts     []*Host     `hcl:"host,block"`
	Resources []*Resource `hcl:"resource,block"`
	Groups    []*Group    `hcl:"group,block"`
}

// Load finds and decodes every .hcl file under path. path may be a directory
// or a single file. Groups with the same name in different files are merged.
func Load(ctx context.Context, path string) (*Manifest, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading manifest from path.", "path", path)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to find manifest files in %s: %w", path, err)
	}

	m := &Manifest{}
	if len(files) == 0 {
		logger.Warn("No .hcl manifest files found in path, returning empty manifest.", "path", path)
		return m, nil
	}

	parser := hclparse.NewParser()
	evalCtx := newEvalContext(os.Environ())
	for _, file := range files {
		if err := m.decodeFile(parser, evalCtx, file); err != nil {
			return nil, err
		}
		logger.Debug("Successfully loaded definitions from HCL file.", "file", file)
	}

	logger.Debug("Manifest loaded.", "hosts", len(m.Hosts), "resources", len(m.Resources), "groups", len(m.Groups))
	return m, nil
}

// Parse decodes a single manifest held in memory. filename is only used in
// diagnostics.
func Parse(src []byte, filename string, environ []string) (*Manifest, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	m := &Manifest{}
	if err := m.decodeBody(hclFile.Body, newEvalContext(environ), filename); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) decodeFile(parser *hclparse.Parser, evalCtx *hcl.EvalContext, filePath string) error {
	hclFile, diags := parser.ParseHCLFile(filePath)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", filePath, diags)
	}
	return m.decodeBody(hclFile.Body, evalCtx, filePath)
}

func (m *Manifest) decodeBody(body hcl.Body, evalCtx *hcl.EvalContext, filePath string) error {
	var parsed hclManifestFile
	if diags := gohcl.DecodeBody(body, evalCtx, &parsed); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", filePath, diags)
	}

	m.Hosts = append(m.Hosts, parsed.Hosts...)
	m.Resources = append(m.Resources, parsed.Resources...)
	for _, g := range parsed.Groups {
		if existing := m.Group(g.Name); existing != nil {
			existing.Spans = append(existing.Spans, g.Spans...)
			continue
		}
		m.Groups = append(m.Groups, g)
	}
	return nil
}

// Group returns the group with the given name, or nil.
func (m *Manifest) Group(name string) *Group {
	for _, g := range m.Groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Apply registers every definition of the manifest in reg, resolving method
// and factory names through catalog. All unknown names are reported at once;
// nothing is registered when any name fails to resolve.
func (m *Manifest) Apply(reg *registry.Registry, catalog *handlers.Handlers) error {
	var errs []error
	factories := make([]registry.ResourceFactory, len(m.Resources))
	for i, res := range m.Resources {
		f, err := catalog.Factory(res.Factory)
		if err != nil {
			errs = append(errs, fmt.Errorf("resource '%s': %w", res.Name, err))
		}
		factories[i] = f
	}

	methods := make(map[*Span]registry.SpanFunc)
	for _, g := range m.Groups {
		for _, s := range g.Spans {
			fn, err := catalog.Method(s.Method)
			if err != nil {
				errs = append(errs, fmt.Errorf("group '%s', span '%s': %w", g.Name, s.Name, err))
			}
			methods[s] = fn
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, h := range m.Hosts {
		reg.RegisterHost(h.Name, h.Address, h.Port, h.Has...)
	}
	for i, res := range m.Resources {
		reg.RegisterResource(res.Name, factories[i])
	}
	for _, g := range m.Groups {
		for _, s := range g.Spans {
			reg.RegisterSpan(g.Name, s.Name, s.Requires, methods[s])
		}
	}
	return nil
}

// newEvalContext exposes the given KEY=VALUE environment as the `env` object.
func newEvalContext(environ []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}

	env := cty.MapValEmpty(cty.String)
	if len(vars) > 0 {
		env = cty.MapVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}

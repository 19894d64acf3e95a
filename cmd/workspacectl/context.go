package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/depforge/workspace/pkg/artifacts"
	"github.com/depforge/workspace/pkg/config"
	"github.com/depforge/workspace/pkg/container"
	"github.com/depforge/workspace/pkg/diag"
	"github.com/depforge/workspace/pkg/graph"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/prebuilts"
	"github.com/depforge/workspace/pkg/resolve"
	"github.com/depforge/workspace/pkg/sandbox"
)

// manifestFileName is the root/dependency manifest file every container
// and the root itself are expected to carry, read through the fixture
// decoder in pkg/manifest since the real manifest format parser is out of
// scope (spec.md §1).
const manifestFileName = "workspace.json"

// Context carries everything a subcommand needs to run one invocation,
// the way golang-dep's Ctx carries GOPATH discovery for cmd/dep. Built
// once per invocation in main.go and threaded into every command.Run.
type Context struct {
	WorkingDir string
	Config     config.Config
	Sandbox    *sandbox.Sandbox
	Scope      *diag.Scope
	Provider   *container.Provider
	Prebuilts  *prebuilts.Manager
	Artifacts  *artifacts.Manager
	GraphBuilder *graph.Builder

	Out, Err *log.Logger
	Verbose  bool
}

// NewContext wires the Context's collaborators from the environment,
// mirroring golang-dep's NewContext()+SourceManager() split: environment
// discovery happens once, and the heavier collaborators (source manager
// there, provider/prebuilts/artifacts/graph builder here) are constructed
// from it immediately after.
func NewContext(workingDir string, out, errLogger *log.Logger, verbose bool) (*Context, error) {
	cfg := config.FromEnvironment()
	if cfg.SwiftVersion == "" {
		cfg.SwiftVersion = "6.0"
	}

	overridePath := filepath.Join(workingDir, "workspace-overrides.toml")
	if data, err := os.ReadFile(overridePath); err == nil {
		if err := config.LoadOverrides(&cfg, data); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	sb := sandbox.New(workingDir)
	scope := diag.NewRoot(newStderrSink(out, errLogger, verbose))

	loader := fileManifestLoader()
	provider := container.NewProvider(loader, manifest.ToolsVersion{Major: 6, Minor: 0}, container.NewGitSCMRepo, "")

	var pm *prebuilts.Manager
	if !cfg.DisablePrebuilts {
		pm = prebuilts.NewManager(prebuilts.DefaultEligibleSet(), http.DefaultClient, sb, cfg.UserCacheDir, cfg.TrustDir, scope.Child("prebuilts"))
	}
	am := artifacts.NewManager(http.DefaultClient, sb, scope.Child("artifacts"))

	gb := graph.NewBuilder(provider, pm, am, cfg.SwiftVersion, prebuilts.Platform(cfg.HostPlatform), func(id identity.Identity, st resolve.ResolvedState) string {
		return checkoutDirectory(sb, id, st)
	})

	return &Context{
		WorkingDir:   workingDir,
		Config:       cfg,
		Sandbox:      sb,
		Scope:        scope,
		Provider:     provider,
		Prebuilts:    pm,
		Artifacts:    am,
		GraphBuilder: gb,
		Out:          out,
		Err:          errLogger,
		Verbose:      verbose,
	}, nil
}

// rootContext returns the base context a subcommand's Run should thread
// through every suspending call (spec.md §5's cancellation points); a real
// CLI would wire this to signal.NotifyContext, but this repo's scope stops
// at the workspace core, so a plain Background is all the entrypoint needs.
func (c *Context) rootContext() context.Context {
	return context.Background()
}

// checkoutDirectory resolves the on-disk directory a resolved package's
// target files live under.
func checkoutDirectory(sb *sandbox.Sandbox, id identity.Identity, st resolve.ResolvedState) string {
	return sb.CheckoutPath(id)
}

// fileManifestLoader reads manifestFileName out of a container's working
// tree using the fixture decoder, the only manifest reader this repo has.
func fileManifestLoader() container.ManifestLoader {
	return func(root string) (*manifest.Manifest, error) {
		f, err := os.Open(filepath.Join(root, manifestFileName))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return manifest.Decode(f, root)
	}
}

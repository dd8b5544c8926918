package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vela-lang/vela/internal/compiler/lexer"
	"github.com/vela-lang/vela/internal/utils"
)

// ArtifactExt is the file extension for compiled bytecode artifacts.
const ArtifactExt = ".velac"

// CompileFunc turns one source file into a serialized bytecode artifact.
// Implementations must be pure functions of their inputs so artifacts are
// byte-reproducible, and must be safe for concurrent use across files.
type CompileFunc func(ctx context.Context, path string, source []byte) ([]byte, error)

// Options configures the build executor
type Options struct {
	ProjectRoot   string
	OutputDir     string
	Target        string // optional target label, recorded in the result
	Incremental   bool
	MaxJobs       int           // 0 means NumCPU
	ModuleTimeout time.Duration // 0 disables the per-module timeout
}

// Result reports the outcome of a build
type Result struct {
	BuildID         string
	Target          string
	ModulesCompiled int
	ModulesCached   int
	Duration        time.Duration
	Success         bool
	FirstError      error
}

// CompileError is a compilation failure in one module
type CompileError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (e *CompileError) Error() string {
	return fmt.Sprintf("compile failed: %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *CompileError) Unwrap() error { return e.Err }

// TimeoutError is a module compilation that exceeded the per-module limit.
// Timed-out modules are treated as failures with this distinct kind.
type TimeoutError struct {
	Path    string
	Timeout time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("compile timed out after %s: %s", e.Timeout, e.Path)
}

// Executor drives the pipeline across many source files: it builds the
// dependency graph, schedules Kahn levels, and compiles modules within a
// level concurrently. Levels are processed strictly in order.
type Executor struct {
	opts    Options
	graph   *Graph
	cache   *Cache
	compile CompileFunc
	logger  *zap.Logger
}

// NewExecutor creates a build executor. The compile function is the
// single-module pipeline; the cache lives under the output directory.
func NewExecutor(opts Options, compile CompileFunc, logger *zap.Logger) (*Executor, error) {
	if compile == nil {
		return nil, errors.New("compile function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = runtime.NumCPU()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(opts.ProjectRoot, "target", "vela")
	}

	cache, err := NewCache(filepath.Join(opts.OutputDir, ".cache"))
	if err != nil {
		return nil, err
	}

	return &Executor{
		opts:    opts,
		graph:   NewGraph(),
		cache:   cache,
		compile: compile,
		logger:  logger,
	}, nil
}

// Graph exposes the dependency graph, populated during Execute.
func (e *Executor) Graph() *Graph { return e.graph }

// Cache exposes the build cache.
func (e *Executor) Cache() *Cache { return e.cache }

// Execute runs the full build: discovery, graph construction, cycle check,
// then level-by-level parallel compilation with content-addressed caching.
func (e *Executor) Execute(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{
		BuildID: uuid.NewString(),
		Target:  e.opts.Target,
	}
	log := e.logger.With(zap.String("build_id", result.BuildID))

	files, err := utils.FindVelaFiles(e.opts.ProjectRoot)
	if err != nil {
		result.Duration = time.Since(start)
		result.FirstError = err
		return result, fmt.Errorf("source discovery failed: %w", err)
	}
	if len(files) == 0 {
		log.Info("no source files found", zap.String("root", e.opts.ProjectRoot))
		result.Success = true
		result.Duration = time.Since(start)
		return result, nil
	}
	log.Info("discovered sources", zap.Int("count", len(files)))

	sources := make(map[string][]byte, len(files))
	for _, file := range files {
		source, err := os.ReadFile(file)
		if err != nil {
			result.Duration = time.Since(start)
			result.FirstError = err
			return result, fmt.Errorf("failed to read %s: %w", file, err)
		}
		sources[file] = source
		id := e.graph.AddModule(file)
		e.graph.Module(id).Fingerprint = Fingerprint(source)
	}

	for _, file := range files {
		from, _ := e.graph.Lookup(file)
		for _, dep := range e.extractImports(sources[file]) {
			if to, ok := e.graph.Lookup(dep); ok && to != from {
				e.graph.AddDependency(from, to)
			}
		}
	}

	levels, err := e.graph.Levels()
	if err != nil {
		log.Error("dependency cycle", zap.Error(err))
		result.Duration = time.Since(start)
		result.FirstError = err
		return result, err
	}

	// Fold each module's dependency fingerprints into its own, level by
	// level, so a change in any transitive dependency changes the key.
	for _, level := range levels {
		for _, id := range level {
			module := e.graph.Module(id)
			deps := make([]string, 0, len(module.Dependencies))
			for _, fp := range e.dependencyFingerprints(module) {
				deps = append(deps, fp)
			}
			module.Fingerprint = CombineFingerprints(module.Fingerprint, deps)
		}
	}

	for levelIdx, level := range levels {
		compiled, cached, err := e.executeLevel(ctx, log, levelIdx, level)
		result.ModulesCompiled += compiled
		result.ModulesCached += cached
		if err != nil {
			result.Duration = time.Since(start)
			result.FirstError = err
			log.Error("build failed", zap.Error(err), zap.Duration("elapsed", result.Duration))
			return result, err
		}
	}

	result.Success = true
	result.Duration = time.Since(start)
	log.Info("build succeeded",
		zap.Int("compiled", result.ModulesCompiled),
		zap.Int("cached", result.ModulesCached),
		zap.Duration("elapsed", result.Duration))
	return result, nil
}

// levelOutcome is the staged result of one module within a level. Cache
// updates are committed only after the whole level succeeds.
type levelOutcome struct {
	id       ModuleID
	artifact []byte
	cacheHit bool
}

// executeLevel compiles the modules of one level concurrently and blocks
// until every worker has returned. On the first failure, in-flight workers
// abort at safe points via context cancellation; partial cache updates are
// not committed.
func (e *Executor) executeLevel(ctx context.Context, log *zap.Logger, levelIdx int, level []ModuleID) (int, int, error) {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.MaxJobs)

	outcomes := make([]*levelOutcome, len(level))
	var mu sync.Mutex
	var firstErr error

	for _, id := range level {
		e.graph.Module(id).State = StateQueued
	}

	for i, id := range level {
		group.Go(func() error {
			// Safe point: skip work that begins after cancellation.
			if gctx.Err() != nil {
				return gctx.Err()
			}

			module := e.graph.Module(id)
			module.State = StateCompiling

			depFps := e.dependencyFingerprints(module)
			if e.opts.Incremental && e.cache.IsValid(module.Path, module.Fingerprint, depFps) {
				module.State = StateCompiled
				outcomes[i] = &levelOutcome{id: id, cacheHit: true}
				log.Debug("cache hit", zap.String("module", module.Path))
				return nil
			}

			artifact, err := e.compileModule(gctx, module)
			if err != nil {
				module.State = StateFailed
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return err
			}

			module.State = StateCompiled
			outcomes[i] = &levelOutcome{id: id, artifact: artifact}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if firstErr != nil {
			err = firstErr
		}
		return 0, 0, err
	}

	// Level barrier passed: write artifacts and commit cache entries.
	compiled, cached := 0, 0
	for _, outcome := range outcomes {
		module := e.graph.Module(outcome.id)
		if outcome.cacheHit {
			cached++
			continue
		}
		if err := e.writeArtifact(module.Path, outcome.artifact); err != nil {
			return compiled, cached, err
		}
		if err := e.cache.Store(module.Path, module.Fingerprint, outcome.artifact, e.dependencyFingerprints(module)); err != nil {
			log.Warn("cache store failed", zap.String("module", module.Path), zap.Error(err))
		}
		compiled++
	}

	log.Debug("level complete",
		zap.Int("level", levelIdx),
		zap.Int("compiled", compiled),
		zap.Int("cached", cached))
	return compiled, cached, nil
}

// compileModule runs the compile function for one module, applying the
// per-module hard timeout when configured.
func (e *Executor) compileModule(ctx context.Context, module *Module) ([]byte, error) {
	source, err := os.ReadFile(module.Path)
	if err != nil {
		return nil, &CompileError{Path: module.Path, Err: err}
	}

	compileCtx := ctx
	var cancel context.CancelFunc
	if e.opts.ModuleTimeout > 0 {
		compileCtx, cancel = context.WithTimeout(ctx, e.opts.ModuleTimeout)
		defer cancel()
	}

	type compileResult struct {
		artifact []byte
		err      error
	}
	done := make(chan compileResult, 1)
	go func() {
		artifact, err := e.compile(compileCtx, module.Path, source)
		done <- compileResult{artifact, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, &CompileError{Path: module.Path, Err: res.err}
		}
		return res.artifact, nil
	case <-compileCtx.Done():
		if e.opts.ModuleTimeout > 0 && errors.Is(compileCtx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Path: module.Path, Timeout: e.opts.ModuleTimeout}
		}
		return nil, compileCtx.Err()
	}
}

// dependencyFingerprints collects the content fingerprints of a module's
// direct dependencies.
func (e *Executor) dependencyFingerprints(module *Module) map[string]string {
	deps := make(map[string]string, len(module.Dependencies))
	for _, depID := range module.Dependencies {
		dep := e.graph.Module(depID)
		deps[dep.Path] = dep.Fingerprint
	}
	return deps
}

// writeArtifact writes a compiled artifact under the output directory,
// mirroring the source tree.
func (e *Executor) writeArtifact(sourcePath string, artifact []byte) error {
	rel, err := filepath.Rel(e.opts.ProjectRoot, sourcePath)
	if err != nil {
		rel = filepath.Base(sourcePath)
	}
	outPath := filepath.Join(e.opts.OutputDir, rel)
	outPath = strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ArtifactExt

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outPath, artifact, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// extractImports scans a source buffer for import declarations and resolves
// them to candidate file paths relative to the project root. The full parse
// is the parser's job; the graph only needs the edges.
func (e *Executor) extractImports(source []byte) []string {
	lex := lexer.New(string(source), "")
	tokens, _ := lex.ScanTokens()

	var paths []string
	for i := 0; i < len(tokens); i++ {
		if tokens[i].Type != lexer.TOKEN_IMPORT {
			continue
		}
		var segments []string
		j := i + 1
		for j < len(tokens) && tokens[j].Type == lexer.TOKEN_IDENTIFIER {
			segments = append(segments, tokens[j].Lexeme)
			if j+1 < len(tokens) && tokens[j+1].Type == lexer.TOKEN_DOUBLE_COLON {
				j += 2
				continue
			}
			j++
			break
		}
		if len(segments) > 0 {
			rel := filepath.Join(segments...) + ".vela"
			paths = append(paths, filepath.Join(e.opts.ProjectRoot, rel))
		}
		i = j
	}
	return paths
}

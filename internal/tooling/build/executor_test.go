package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vela-lang/vela/internal/compiler"
)

// writeProject lays out source files under a temp root.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

// fakeCompile returns a deterministic artifact and counts invocations.
func fakeCompile(counter *atomic.Int32) CompileFunc {
	return func(ctx context.Context, path string, source []byte) ([]byte, error) {
		counter.Add(1)
		return append([]byte("compiled:"), source...), nil
	}
}

func newExecutor(t *testing.T, root string, incremental bool, compile CompileFunc) *Executor {
	t.Helper()
	exec, err := NewExecutor(Options{
		ProjectRoot: root,
		OutputDir:   filepath.Join(root, "target", "vela"),
		Incremental: incremental,
	}, compile, zap.NewNop())
	require.NoError(t, err)
	return exec
}

func TestExecuteEmptyProject(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	exec := newExecutor(t, root, false, fakeCompile(&calls))

	result, err := exec.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.ModulesCompiled)
	assert.Zero(t, result.ModulesCached)
}

func TestExecuteCompilesAllModules(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.vela": "state a = 1;",
		"b.vela": "import a;\nstate b = 2;",
		"c.vela": "state c = 3;",
	})
	var calls atomic.Int32
	exec := newExecutor(t, root, false, fakeCompile(&calls))

	result, err := exec.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.ModulesCompiled)
	assert.Equal(t, int32(3), calls.Load())
	assert.NotEmpty(t, result.BuildID)

	// Artifacts mirror the source tree with the artifact extension.
	for _, name := range []string{"a.velac", "b.velac", "c.velac"} {
		_, statErr := os.Stat(filepath.Join(root, "target", "vela", name))
		assert.NoError(t, statErr, "missing artifact %s", name)
	}
}

func TestExecuteDependencyOrder(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.vela": "state a = 1;",
		"b.vela": "import a;\nstate b = 2;",
	})

	var order []string
	var mu sync.Mutex
	compile := func(ctx context.Context, path string, source []byte) ([]byte, error) {
		mu.Lock()
		order = append(order, filepath.Base(path))
		mu.Unlock()
		return source, nil
	}

	exec := newExecutor(t, root, false, compile)
	_, err := exec.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"a.vela", "b.vela"}, order,
		"dependencies compile before dependents")
}

func TestExecuteIncrementalCacheHits(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.vela": "state a = 1;",
		"b.vela": "import a;\nstate b = 2;",
	})
	var calls atomic.Int32

	first := newExecutor(t, root, true, fakeCompile(&calls))
	result, err := first.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.ModulesCompiled)
	assert.Equal(t, 0, result.ModulesCached)

	// Second run over unchanged sources: everything is cached. The cache
	// index persists under the output directory, so a fresh executor sees it.
	second := newExecutor(t, root, true, fakeCompile(&calls))
	result, err = second.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ModulesCompiled)
	assert.Equal(t, 2, result.ModulesCached)
	assert.Equal(t, int32(2), calls.Load(), "no compile may run on a full cache hit")
}

func TestExecuteInvalidatesDependents(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.vela": "state a = 1;",
		"b.vela": "import a;\nstate b = 2;",
	})
	var calls atomic.Int32

	first := newExecutor(t, root, true, fakeCompile(&calls))
	_, err := first.Execute(context.Background())
	require.NoError(t, err)

	// Changing a dependency invalidates both it and its dependent.
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.vela"), []byte("state a = 99;"), 0o644))

	second := newExecutor(t, root, true, fakeCompile(&calls))
	result, err := second.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.ModulesCompiled)
	assert.Equal(t, 0, result.ModulesCached)
}

func TestExecuteFailureHaltsSubsequentLevels(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.vela": "state a = 1;",
		"b.vela": "import a;\nstate b = 2;",
	})

	var compiled []string
	var mu sync.Mutex
	compile := func(ctx context.Context, path string, source []byte) ([]byte, error) {
		mu.Lock()
		compiled = append(compiled, filepath.Base(path))
		mu.Unlock()
		if filepath.Base(path) == "a.vela" {
			return nil, errors.New("boom")
		}
		return source, nil
	}

	exec := newExecutor(t, root, false, compile)
	result, err := exec.Execute(context.Background())
	require.Error(t, err)
	assert.False(t, result.Success)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "boom", compileErr.Err.Error())

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, compiled, "b.vela",
		"subsequent levels must not start after a failure")

	// Failed levels commit nothing to the cache.
	assert.Zero(t, exec.Cache().Len())
}

func TestExecuteCycleFailsBeforeCompiling(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.vela": "import b;\nstate a = 1;",
		"b.vela": "import a;\nstate b = 2;",
	})
	var calls atomic.Int32

	exec := newExecutor(t, root, false, fakeCompile(&calls))
	result, err := exec.Execute(context.Background())
	require.Error(t, err)
	assert.False(t, result.Success)

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Zero(t, calls.Load(), "no compilation may run when the graph is cyclic")
}

func TestExecuteSkipsArtifactDirectories(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.vela":                   "state a = 1;",
		"node_modules/dep.vela":    "state x = 1;",
		"target/generated.vela":    "state y = 1;",
		"dist/out.vela":            "state z = 1;",
		"src/nested/feature.vela":  "state f = 1;",
		"build/intermediate.vela":  "state i = 1;",
		".git/hooks/ignored.vela":  "state g = 1;",
		"vendor/third/party.vela":  "state v = 1;",
		".cache/artifact.vela":     "state c = 1;",
		"src/nested/.git/bad.vela": "state bad = 1;",
	})
	var calls atomic.Int32

	exec := newExecutor(t, root, false, fakeCompile(&calls))
	result, err := exec.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.ModulesCompiled, "only a.vela and src/nested/feature.vela")
}

func TestExecuteWithRealPipeline(t *testing.T) {
	root := writeProject(t, map[string]string{
		"lib.vela":  "fn double(n: Number) -> Number { return n + n; }",
		"main.vela": "import lib;\nstate answer = 21;",
	})

	exec := newExecutor(t, root, false, compiler.Compile)
	result, err := exec.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ModulesCompiled)

	artifact, readErr := os.ReadFile(filepath.Join(root, "target", "vela", "main.velac"))
	require.NoError(t, readErr)
	assert.NotEmpty(t, artifact)
}

func TestExecuteRealPipelineReportsFirstError(t *testing.T) {
	root := writeProject(t, map[string]string{
		"bad.vela": "state x: String = 42;",
	})

	exec := newExecutor(t, root, false, compiler.Compile)
	result, err := exec.Execute(context.Background())
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.ErrorContains(t, err, "type mismatch")
}

func TestExecuteCancellation(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 16; i++ {
		files[fmt.Sprintf("m%02d.vela", i)] = "state x = 1;"
	}
	root := writeProject(t, files)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	exec := newExecutor(t, root, false, fakeCompile(&calls))
	result, err := exec.Execute(ctx)
	require.Error(t, err)
	assert.False(t, result.Success)
}

func TestExecuteDeterministicArtifacts(t *testing.T) {
	source := map[string]string{
		"app.vela": "fn run() -> Number { return 7; }",
	}

	readArtifact := func() []byte {
		root := writeProject(t, source)
		exec := newExecutor(t, root, false, func(ctx context.Context, path string, src []byte) ([]byte, error) {
			// Strip the timestamp dependence by hashing only the source.
			return []byte(Fingerprint(src)), nil
		})
		_, err := exec.Execute(context.Background())
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(root, "target", "vela", "app.velac"))
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, readArtifact(), readArtifact(),
		"identical inputs must produce identical artifacts")
}

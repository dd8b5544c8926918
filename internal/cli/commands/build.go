package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vela-lang/vela/internal/cli/config"
	"github.com/vela-lang/vela/internal/compiler"
	"github.com/vela-lang/vela/internal/tooling/build"
)

var (
	buildOutput      string
	buildTarget      string
	buildIncremental bool
	buildJobs        int
	buildVerbose     bool
)

// NewBuildCommand creates the build command
func NewBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [project root]",
		Short: "Compile Vela sources to bytecode",
		Long: `Compile every .vela file under the project root into .velac bytecode
artifacts under the output directory.

The build process:
  1. Source discovery - walk the project root, skipping artifact dirs
  2. Dependency graph - extract imports, reject cycles
  3. Parallel compilation - Kahn levels, modules within a level concurrent
  4. Caching - unchanged modules (by content fingerprint) are skipped`,
		Example: `  # Build the current directory
  vela build

  # Full rebuild with a custom output directory
  vela build --incremental=false --output dist/bytecode

  # Build for a labeled target
  vela build --target ios`,
		Args: cobra.MaximumNArgs(1),
		RunE: runBuild,
	}

	cmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Output directory (default: target/vela)")
	cmd.Flags().StringVar(&buildTarget, "target", "", "Target label")
	cmd.Flags().BoolVar(&buildIncremental, "incremental", true, "Reuse cached artifacts for unchanged modules")
	cmd.Flags().IntVarP(&buildJobs, "jobs", "j", 0, "Maximum parallel compile jobs (default: CPU count)")
	cmd.Flags().BoolVarP(&buildVerbose, "verbose", "v", false, "Show detailed build output")

	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	successColor := color.New(color.FgGreen, color.Bold)
	errorColor := color.New(color.FgRed, color.Bold)
	infoColor := color.New(color.FgCyan)
	warningColor := color.New(color.FgYellow)

	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	cfg, err := config.Load()
	if err != nil {
		if buildVerbose {
			warningColor.Printf("Warning: %v\n", err)
		}
		cfg = &config.Config{}
	}

	outputDir := buildOutput
	if outputDir == "" {
		outputDir = cfg.Build.OutputDir
	}
	target := buildTarget
	if target == "" {
		target = cfg.Build.Target
	}
	jobs := buildJobs
	if jobs == 0 {
		jobs = cfg.Build.MaxJobs
	}
	incremental := buildIncremental
	if !cmd.Flags().Changed("incremental") {
		incremental = cfg.Build.Incremental
	}

	logger := zap.NewNop()
	if buildVerbose {
		devLogger, err := zap.NewDevelopment()
		if err == nil {
			logger = devLogger
			defer logger.Sync() //nolint:errcheck
		}
	}

	executor, err := build.NewExecutor(build.Options{
		ProjectRoot:   root,
		OutputDir:     outputDir,
		Target:        target,
		Incremental:   incremental,
		MaxJobs:       jobs,
		ModuleTimeout: time.Minute,
	}, compiler.Compile, logger)
	if err != nil {
		return err
	}

	result, execErr := executor.Execute(cmd.Context())
	if execErr != nil {
		errorColor.Printf("✗ Build failed in %.2fs\n", result.Duration.Seconds())
		fmt.Printf("  %v\n", execErr)
		return fmt.Errorf("build failed")
	}

	successColor.Printf("✓ Build successful in %.2fs\n", result.Duration.Seconds())
	infoColor.Printf("  Compiled: %d  Cached: %d\n", result.ModulesCompiled, result.ModulesCached)
	if target != "" {
		infoColor.Printf("  Target: %s\n", target)
	}
	return nil
}

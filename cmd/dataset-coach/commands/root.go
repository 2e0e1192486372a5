// Package commands implements the dataset-coach CLI.
package commands

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"dataset-coach/internal/cache"
	"dataset-coach/internal/database"
	"dataset-coach/internal/logging"
	"dataset-coach/internal/mediatypes"
	"dataset-coach/internal/metrics"
	"dataset-coach/internal/sdapi"
	"dataset-coach/internal/startup"
)

// CLI holds the root command and the shared persistent flags.
type CLI struct {
	rootCmd *cobra.Command

	cacheFile    string
	noCache      bool
	apiURL       string
	metricsAddr  string
	manifestFile string
	logLevel     string
	verbose      bool
	timeout      time.Duration
	maxAttempts  int
	workerCount  int
}

// New builds the CLI command tree.
func New() *CLI {
	c := &CLI{}

	rootCmd := &cobra.Command{
		Use:   "dataset-coach",
		Short: "Prepare image datasets for fine-tuning",
		Long: "dataset-coach prepares image datasets for fine-tuning workflows:\n" +
			"it renames and deduplicates images by content hash, extracts metadata,\n" +
			"generates captions, and upscales or colorizes images through an\n" +
			"sd-webui compatible generation service. Expensive work is skipped on\n" +
			"repeat runs via a content-addressed processing cache.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       startup.Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.logLevel != "" {
				lvl, ok := logging.ParseLevel(c.logLevel)
				if !ok {
					return fmt.Errorf("invalid log level %q", c.logLevel)
				}
				logging.SetLevel(lvl)
			}
			if c.verbose {
				logging.SetLevel(logging.LevelDebug)
			}
			if c.metricsAddr != "" {
				metrics.Serve(c.metricsAddr)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&c.cacheFile, "cache-file", startup.DefaultCachePath(), "processing cache file")
	pf.BoolVar(&c.noCache, "no-cache", startup.GetEnvBool("DATASET_COACH_NO_CACHE", false), "disable the processing cache")
	pf.StringVar(&c.apiURL, "api-url", startup.GetEnv("GENERATION_API_URL", "http://127.0.0.1:7860"), "generation service URL")
	pf.StringVar(&c.metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	pf.StringVar(&c.manifestFile, "manifest", startup.DefaultManifestPath(), "run manifest database (empty disables)")
	pf.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	pf.DurationVar(&c.timeout, "timeout", 5*time.Minute, "per-request timeout for the generation service")
	pf.IntVar(&c.maxAttempts, "max-attempts", 4, "attempts per generation service request")
	pf.IntVar(&c.workerCount, "workers", 0, "worker count for file stages (0 = auto)")

	rootCmd.AddCommand(
		c.newRunCmd(),
		c.newRenameCmd(),
		c.newMetadataCmd(),
		c.newDescribeCmd(),
		c.newEnhanceCmd(),
		c.newCacheCmd(),
		c.newVersionCmd(),
	)

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// openStore opens the processing cache, or returns nil when caching is
// disabled.
func (c *CLI) openStore() *cache.Store {
	if c.noCache {
		return nil
	}
	if dir := filepath.Dir(c.cacheFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Warn("Failed to create cache directory %s: %v", dir, err)
		}
	}
	return cache.New(c.cacheFile)
}

// newClient builds the generation service client from the persistent flags.
func (c *CLI) newClient() *sdapi.Client {
	policy := sdapi.DefaultRetryPolicy()
	if c.maxAttempts > 0 {
		policy.MaxAttempts = c.maxAttempts
	}
	return sdapi.NewClient(c.apiURL, c.timeout, policy)
}

// openManifest opens the run manifest, or returns nil when disabled.
func (c *CLI) openManifest(ctx context.Context) (*database.Manifest, error) {
	if c.manifestFile == "" {
		return nil, nil
	}
	if dir := filepath.Dir(c.manifestFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create manifest directory %s: %w", dir, err)
		}
	}
	return database.Open(ctx, c.manifestFile)
}

// scanImages collects supported image files under dir, sorted.
func scanImages(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Skipping %s during scan: %v", path, err)
			return nil
		}
		if !d.IsDir() && mediatypes.IsImageFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// recordOutcomes writes per-image results for one stage into the manifest.
func recordOutcomes(ctx context.Context, m *database.Manifest, stage string, ok map[string]string, failed []string) {
	if m == nil {
		return
	}
	for source, output := range ok {
		m.RecordResult(ctx, database.Record{
			SourcePath: source,
			Stage:      stage,
			OutputPath: output,
			Status:     "ok",
		})
	}
	for _, source := range failed {
		m.RecordResult(ctx, database.Record{
			SourcePath: source,
			Stage:      stage,
			Status:     "failed",
		})
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/ogulcanaydogan/finprep/internal/config"
	"github.com/ogulcanaydogan/finprep/internal/generate"
	"github.com/ogulcanaydogan/finprep/internal/logging"
	"github.com/ogulcanaydogan/finprep/internal/pipeline"
	"github.com/ogulcanaydogan/finprep/internal/prompt"
	"github.com/ogulcanaydogan/finprep/internal/report"
	"github.com/ogulcanaydogan/finprep/internal/store"
	"github.com/ogulcanaydogan/finprep/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func (e cliError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(pipeline.ExitAborted)
	}
}

var newGenerator = func(cfg generate.Config, log *zap.Logger) (generate.Generator, error) {
	return generate.New(cfg, log)
}

// globalFlags apply to every command; zero values mean "use the config file".
type globalFlags struct {
	configPath string
	dataset    string
	prompts    string
	logLevel   string
}

type runFlags struct {
	subsets     []string
	overwrite   bool
	ensureASCII bool
	provider    string
	model       string
	cachePath   string
	reportPath  string
	strict      bool
}

type stages struct {
	queries bool
	corpus  bool
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "finprep",
		Short:         "Pre-retrieval preprocessing for financial QA datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, g, &runFlags{}, stages{queries: true, corpus: true})
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", config.DefaultFile, "project config file")
	root.PersistentFlags().StringVar(&g.dataset, "dataset", "", "dataset root (local path, gs:// or s3://)")
	root.PersistentFlags().StringVar(&g.prompts, "prompts", "", "prompt registry JSON")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug|info|warn|error)")

	root.AddCommand(newRunCommand(g))
	root.AddCommand(newExpandCommand(g))
	root.AddCommand(newCompactCommand(g))
	root.AddCommand(newSubsetsCommand(g))
	root.AddCommand(newInitCommand())
	root.AddCommand(newReportCommand())
	return root
}

func newRunCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Expand queries and prepare the corpus for every configured subset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, g, f, stages{queries: true, corpus: true})
		},
	}
	cmd.Flags().StringSliceVar(&f.subsets, "subsets", nil, "comma separated subsets to process (default: all configured)")
	addGeneratorFlags(cmd, f)
	addOutputFlags(cmd, f)
	return cmd
}

func newExpandCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Expand queries for the given subsets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(f.subsets) == 0 {
				return fmt.Errorf("--subset is required")
			}
			return execute(cmd, g, f, stages{queries: true})
		},
	}
	cmd.Flags().StringSliceVar(&f.subsets, "subset", nil, "subset to expand (repeatable)")
	addGeneratorFlags(cmd, f)
	addOutputFlags(cmd, f)
	return cmd
}

func newCompactCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Compact or copy the corpus for the given subsets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(f.subsets) == 0 {
				return fmt.Errorf("--subset is required")
			}
			return execute(cmd, g, f, stages{corpus: true})
		},
	}
	cmd.Flags().StringSliceVar(&f.subsets, "subset", nil, "subset to prepare (repeatable)")
	addOutputFlags(cmd, f)
	return cmd
}

func addGeneratorFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "regenerate queries_prep.jsonl when it already exists")
	cmd.Flags().StringVar(&f.provider, "provider", "", "generator provider (openai|anthropic|echo)")
	cmd.Flags().StringVar(&f.model, "model", "", "generator model")
	cmd.Flags().StringVar(&f.cachePath, "cache", "", "SQLite generation cache path")
}

func addOutputFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().BoolVar(&f.ensureASCII, "ensure-ascii", true, "escape non-ASCII characters in written JSONL")
	cmd.Flags().StringVar(&f.reportPath, "report", "", "write a run report (.json or .md)")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "exit 2 when any subset fails")
}

func loadConfig(cmd *cobra.Command, g *globalFlags, f *runFlags) (config.ProjectConfig, error) {
	var cfg config.ProjectConfig
	var err error
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(g.configPath)
	} else {
		cfg, err = config.LoadOrDefault(g.configPath)
	}
	if err != nil {
		return cfg, err
	}
	if g.dataset != "" {
		cfg.DatasetDir = g.dataset
	}
	if g.prompts != "" {
		cfg.PromptFile = g.prompts
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	flags := cmd.Flags()
	if flags.Changed("overwrite") {
		cfg.Overwrite = f.overwrite
	}
	if flags.Changed("ensure-ascii") {
		cfg.EnsureASCII = f.ensureASCII
	}
	if f.provider != "" {
		cfg.Generator.Provider = f.provider
	}
	if f.model != "" {
		cfg.Generator.Model = f.model
	}
	if f.cachePath != "" {
		cfg.Generator.CachePath = f.cachePath
	}
	return cfg, cfg.Validate()
}

func execute(cmd *cobra.Command, g *globalFlags, f *runFlags, run stages) (retErr error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(cmd, g, f)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	st := store.New()
	d := &pipeline.Driver{Store: st, Out: cmd.OutOrStdout(), Log: log}
	if run.queries {
		reg, err := prompt.Load(ctx, st, cfg.PromptFile, cfg.PromptSchema)
		switch {
		case err == nil:
			d.Templates = reg
			d.PromptDigest = reg.Digest()
			log.Info("prompt registry loaded",
				zap.String("source", reg.Source()),
				zap.String("digest", reg.Digest()),
				zap.Strings("subsets", reg.Subsets(types.StagePreRetrieval, types.KindQueries)))
		case types.Recoverable(err):
			log.Warn("prompt registry unavailable", zap.String("path", cfg.PromptFile), zap.Error(err))
			d.Templates = prompt.Unavailable{Err: err}
		default:
			return err
		}

		gen, err := newGenerator(cfg.Generator, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := gen.Close(); err != nil && retErr == nil {
				retErr = fmt.Errorf("close generator: %w", err)
			}
		}()
		d.Generator = gen
		d.GeneratorLabel = cfg.Generator.Label()
	}

	r, runErr := d.Run(ctx, pipeline.Options{
		Dataset:     cfg.DatasetDir,
		Subsets:     cfg.Select(f.subsets),
		Overwrite:   cfg.Overwrite,
		EnsureASCII: cfg.EnsureASCII,
		SkipQueries: !run.queries,
		SkipCorpus:  !run.corpus,
	})
	if f.reportPath != "" {
		if err := report.Write(f.reportPath, r); err != nil {
			return err
		}
		log.Info("run report written", zap.String("path", f.reportPath), zap.String("run_id", r.RunID))
	}
	if runErr != nil {
		return runErr
	}
	if f.strict && len(r.Failed()) > 0 {
		return cliError{code: pipeline.ExitFailedSubsets, err: fmt.Errorf("%d subset(s) failed: %w", len(r.Failed()), r.Err())}
	}
	return nil
}

func newSubsetsCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "subsets",
		Short: "List configured subsets and their corpus policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g, &runFlags{})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			// TEMPLATE flags subsets whose query stage would fail on lookup.
			template := func(string) string { return "unavailable" }
			if reg, err := prompt.Load(ctx, store.New(), cfg.PromptFile, cfg.PromptSchema); err == nil {
				registered := map[string]bool{}
				for _, name := range reg.Subsets(types.StagePreRetrieval, types.KindQueries) {
					registered[name] = true
				}
				template = func(name string) string {
					if registered[name] {
						return "ok"
					}
					return "missing"
				}
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SUBSET\tCORPUS\tFALLBACK\tTEMPLATE")
			for _, s := range cfg.Subsets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.CorpusMode, s.Fallback, template(s.Name))
			}
			return w.Flush()
		},
	}
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default finprep.yaml and prompt.json when absent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultProjectConfig()
			var written []string
			if !fileExists(config.DefaultFile) {
				raw, err := config.Marshal(cfg)
				if err != nil {
					return err
				}
				if err := os.WriteFile(config.DefaultFile, raw, 0o644); err != nil {
					return err
				}
				written = append(written, config.DefaultFile)
			}
			if !fileExists(cfg.PromptFile) {
				raw, err := prompt.Default(cfg.SubsetNames())
				if err != nil {
					return err
				}
				if err := os.WriteFile(cfg.PromptFile, raw, 0o644); err != nil {
					return err
				}
				written = append(written, cfg.PromptFile)
			}
			if len(written) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "finprep already initialized")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", strings.Join(written, ", "))
			return nil
		},
	}
}

func newReportCommand() *cobra.Command {
	var inPath, outPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a saved JSON run report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" || outPath == "" {
				return fmt.Errorf("--in and --out are required")
			}
			r, err := report.ReadJSON(inPath)
			if err != nil {
				return err
			}
			if err := report.Write(outPath, r); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "run report json input")
	cmd.Flags().StringVar(&outPath, "out", "", "report output (.md or .json)")
	return cmd
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

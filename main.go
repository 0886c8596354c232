// Command gho harvests WHO Global Health Observatory indicators per health topic
// and writes them as long and wide tables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/giygas/gho-indicators/config"
	"github.com/giygas/gho-indicators/entities"
	"github.com/giygas/gho-indicators/ghoapi"
	"github.com/giygas/gho-indicators/indicators"
	"github.com/giygas/gho-indicators/logging"
	"github.com/giygas/gho-indicators/pipeline"
	"github.com/giygas/gho-indicators/reshape"
	"github.com/giygas/gho-indicators/writer"
	"github.com/spf13/cobra"
)

// cli carries the configuration shared by every subcommand
type cli struct {
	cfg *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		logging.Error("Command failed", "error", err)
		_ = logging.Close()
		os.Exit(1)
	}
	_ = logging.Close()
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "gho",
		Short:         "Harvest WHO GHO indicators per health topic into long and wide tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}

	root.AddCommand(
		c.newRunCmd(),
		c.newTopicsCmd(),
		c.newIndicatorsCmd(),
		c.newServeCmd(),
	)
	return root
}

// setup loads .env, the environment configuration and the logger
func (c *cli) setup() error {
	envFile, envErr := config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c.cfg = cfg

	logging.InitLoggerWithOptions(logging.Options{
		Dir:            cfg.LogDir,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})

	if envErr != nil {
		logging.Warn("Failed to load .env file", "error", envErr)
	} else if envFile != "" {
		logging.Debug("Loaded environment file", "path", envFile)
	}
	return nil
}

func (c *cli) loadTopics() ([]entities.Topic, error) {
	return config.LoadTopics(c.cfg.TopicsFile, c.cfg.OutputFormat)
}

func (c *cli) newClient() *ghoapi.Client {
	return ghoapi.NewClient(c.cfg.BaseURL, ghoapi.WithTimeout(c.cfg.HTTPTimeout))
}

// newPipeline builds the pipeline from the current configuration
func (c *cli) newPipeline() (*pipeline.Pipeline, error) {
	policy, err := reshape.ParseDuplicatePolicy(c.cfg.DuplicatePolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	return pipeline.New(c.newClient(),
		pipeline.WithConcurrency(c.cfg.FetchConcurrency),
		pipeline.WithDuplicatePolicy(policy),
		pipeline.WithWriter(writer.FileWriter{
			Dir:      c.cfg.OutputDir,
			Format:   c.cfg.OutputFormat,
			Workbook: c.cfg.OutputXLSX,
		}),
	), nil
}

type runOptions struct {
	all         bool
	outputDir   string
	format      string
	xlsx        bool
	concurrency int
	duplicates  string
}

func (c *cli) newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [topic...]",
		Short: "Run the pipeline for the named topics and write their tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("output-dir") {
				c.cfg.OutputDir = opts.outputDir
			}
			if flags.Changed("format") {
				c.cfg.OutputFormat = strings.ToLower(opts.format)
			}
			if flags.Changed("xlsx") {
				c.cfg.OutputXLSX = opts.xlsx
			}
			if flags.Changed("concurrency") {
				c.cfg.FetchConcurrency = opts.concurrency
			}
			if flags.Changed("duplicates") {
				c.cfg.DuplicatePolicy = strings.ToLower(opts.duplicates)
			}
			if err := config.Validate(c.cfg); err != nil {
				return err
			}

			return c.run(cmd.Context(), cmd.OutOrStdout(), args, opts.all)
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "Run every configured topic")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Output directory (default OUTPUT_DIR)")
	cmd.Flags().StringVar(&opts.format, "format", "", "Output format: csv or tsv (default OUTPUT_FORMAT)")
	cmd.Flags().BoolVar(&opts.xlsx, "xlsx", false, "Also write an xlsx workbook per topic")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 1, "Observation requests in flight")
	cmd.Flags().StringVar(&opts.duplicates, "duplicates", "", "Duplicate cell policy: last, reject or mean")

	return cmd
}

// run executes the selected topics and prints the files written. A failing topic
// does not stop the others, but makes the command fail.
func (c *cli) run(ctx context.Context, out io.Writer, names []string, all bool) error {
	topics, err := c.loadTopics()
	if err != nil {
		return err
	}

	selected, err := selectTopics(topics, names, all)
	if err != nil {
		return err
	}

	p, err := c.newPipeline()
	if err != nil {
		return err
	}

	results, runErr := p.RunTopics(ctx, selected)
	for _, result := range results {
		for _, file := range result.Files {
			fmt.Fprintln(out, file)
		}
	}
	if runErr != nil {
		return fmt.Errorf("%d of %d topics failed: %w", len(selected)-len(results), len(selected), runErr)
	}
	return nil
}

// selectTopics resolves topic names against the registry, in the order given
func selectTopics(topics []entities.Topic, names []string, all bool) ([]entities.Topic, error) {
	if all {
		if len(names) > 0 {
			return nil, errors.New("pass topic names or --all, not both")
		}
		return topics, nil
	}
	if len(names) == 0 {
		return nil, errors.New("name at least one topic or pass --all")
	}

	selected := make([]entities.Topic, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		topic, err := config.FindTopic(topics, name)
		if err != nil {
			return nil, err
		}
		if seen[topic.Name] {
			continue
		}
		seen[topic.Name] = true
		selected = append(selected, topic)
	}
	return selected, nil
}

func (c *cli) newTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List the configured topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			topics, err := c.loadTopics()
			if err != nil {
				return err
			}
			return printTopics(cmd.OutOrStdout(), topics)
		},
	}
}

func printTopics(out io.Writer, topics []entities.Topic) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOUNTRY COLUMN\tLONG FILE\tWIDE FILE\tKEYWORDS")
	for _, t := range topics {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Name, t.CountryColumn, t.LongFile, t.WideFile, strings.Join(t.Keywords, ", "))
	}
	return tw.Flush()
}

func (c *cli) newIndicatorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indicators <topic>",
		Short: "Print the indicators a topic's keywords select, without fetching observations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topics, err := c.loadTopics()
			if err != nil {
				return err
			}
			topic, err := config.FindTopic(topics, args[0])
			if err != nil {
				return err
			}

			catalog, err := c.newClient().FetchIndicatorCatalog(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch indicator catalog: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, ind := range indicators.Filter(catalog, topic.Keywords) {
				fmt.Fprintf(tw, "%s\t%s\n", ind.Code, ind.Name)
			}
			return tw.Flush()
		},
	}
}

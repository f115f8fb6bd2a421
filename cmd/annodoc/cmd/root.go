package cmd

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/annodoc/internal/cache"
	"github.com/dgallion1/annodoc/internal/config"
	"github.com/dgallion1/annodoc/internal/extract"
	"github.com/dgallion1/annodoc/internal/watch"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	projectPath string

	// Set by the root pre-run for every subcommand.
	project config.Project
	logger  = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "annodoc",
	Short: "Extract documentation from annotated comments",
	Long: "Reads LiveScript, CoffeeScript and JavaScript sources, resolves their\n" +
		"annotated comment blocks into an entity tree and prints the entities as JSON.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadProject,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().StringVar(&projectPath, "config", config.ProjectFile, "Project settings file")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(languagesCmd)
}

func loadProject(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	p, err := config.LoadProject(projectPath)
	if err != nil {
		return err
	}
	project = p
	logger.Debug("project settings", "path", projectPath, "include", p.Include, "exclude", p.Exclude)
	return nil
}

// extractFlags are the options shared by parse and watch. Unset flags fall
// back to the project file.
type extractFlags struct {
	html    bool
	strict  bool
	cache   string
	include []string
	exclude []string
}

func (f *extractFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.html, "html", false, "Render entity text to HTML")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Fail on unknown declaration keywords")
	cmd.Flags().StringVar(&f.cache, "cache", "", "Parse cache file")
	cmd.Flags().StringSliceVar(&f.include, "include", nil, "Include glob (repeatable)")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "Exclude glob (repeatable)")
}

func (f *extractFlags) filter() watch.Filter {
	wf := watch.Filter{Include: f.include, Exclude: f.exclude}
	if len(wf.Include) == 0 {
		wf.Include = project.Include
	}
	if len(wf.Exclude) == 0 {
		wf.Exclude = project.Exclude
	}
	return wf
}

// extractor builds an extractor from the flags. The returned closer
// releases the cache, if one was opened.
func (f *extractFlags) extractor() (*extract.Extractor, func(), error) {
	opts := []extract.Option{
		extract.WithLogger(logger),
		extract.HTML(f.html || project.HTML),
		extract.Strict(f.strict || project.Strict),
	}
	closer := func() {}

	path := f.cache
	if path == "" {
		path = project.Cache
	}
	if path != "" {
		c, err := cache.Open(path)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, extract.WithCache(c))
		closer = func() {
			if err := c.Close(); err != nil {
				logger.Warn("cache close failed", "error", err)
			}
		}
	}
	return extract.New(opts...), closer, nil
}

// fileError is the JSON shape printed for a file that failed to parse.
type fileError struct {
	File   string `json:"file"`
	Error  string `json:"error"`
	Line   int    `json:"line,omitempty"`
	Reason string `json:"reason"`
}

func newEncoder(w io.Writer, pretty bool) *json.Encoder {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc
}

package cmd

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/dgallion1/annodoc/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchDebounce time.Duration
	watchFlags    extractFlags
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Re-extract files as they change",
	Long: "Watches a directory tree and prints one JSON object per changed\n" +
		"supported file. Removed files are reported with \"removed\": true.",
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before changes are processed")
	watchFlags.register(watchCmd)
}

type removed struct {
	File    string `json:"file"`
	Removed bool   `json:"removed"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	x, closeCache, err := watchFlags.extractor()
	if err != nil {
		return err
	}
	defer closeCache()

	enc := newEncoder(cmd.OutOrStdout(), false)
	onChange := func(paths []string) {
		for _, p := range paths {
			data, err := os.ReadFile(p)
			if errors.Is(err, fs.ErrNotExist) {
				enc.Encode(removed{File: p, Removed: true})
				continue
			}
			if err != nil {
				logger.Warn("read failed", "file", p, "error", err)
				continue
			}
			res, err := x.Extract(p, map[string]any{"file": p}, string(data))
			if err != nil {
				enc.Encode(errorFor(p, err))
				continue
			}
			enc.Encode(res)
		}
	}

	w, err := watch.New(dir, watch.Options{
		Filter:   watchFlags.filter(),
		Debounce: watchDebounce,
		Log:      logger,
	}, onChange)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Close()
		return err
	}

	<-cmd.Context().Done()
	return w.Close()
}

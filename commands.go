package datasets

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewCommand creates a Cobra command tree for dataset management.
// The returned command can run standalone or be added to a parent CLI.
//
// Commands provided:
//   - datasets list
//   - datasets prepare <name>
//   - datasets verify <name>
//   - datasets inspect <name>
//   - datasets path <name>
//   - datasets remove <name> [--yes]
//
// Global flags: --cache-dir, --catalog, --concurrency, --metrics-textfile,
// --json, --quiet, --verbose
func NewCommand(cfg Config, opts ...Option) *cobra.Command {
	c := &cli{cfg: cfg, opts: opts}

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "Download and decode training datasets",
		Long:  "Fetch dataset archives into a local cache, verify them, and decode their fixed-size binary records.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return c.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.metrics == nil || c.metricsPath == "" {
				return nil
			}
			if err := c.metrics.WriteTextfile(c.metricsPath); err != nil {
				return fmt.Errorf("%w: writing metrics: %v", ErrIO, err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.cfg.CacheDir, "cache-dir", cfg.CacheDir, "Cache root directory (default "+DefaultCacheDir+")")
	flags.StringVar(&c.catalogPath, "catalog", "", "YAML file with additional dataset layouts")
	flags.IntVar(&c.concurrency, "concurrency", DefaultConcurrency, "Artifacts fetched in parallel")
	flags.StringVar(&c.metricsPath, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")
	flags.BoolVar(&c.jsonOutput, "json", false, "Output in JSON format")
	flags.BoolVarP(&c.quiet, "quiet", "q", false, "Suppress non-essential output")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Verbose output")

	cmd.AddCommand(listCmd(c))
	cmd.AddCommand(prepareCmd(c))
	cmd.AddCommand(verifyCmd(c))
	cmd.AddCommand(inspectCmd(c))
	cmd.AddCommand(pathCmd(c))
	cmd.AddCommand(removeCmd(c))

	return cmd
}

// cli carries flag values and the objects built from them to subcommands.
type cli struct {
	cfg  Config
	opts []Option

	catalogPath string
	concurrency int
	metricsPath string
	jsonOutput  bool
	quiet       bool
	verbose     bool

	catalog Catalog
	logger  *slog.Logger
	metrics *Metrics
}

// setup loads the catalog and builds the logger and metrics once flags are parsed.
func (c *cli) setup(cmd *cobra.Command) error {
	level := slog.LevelWarn
	switch {
	case c.verbose:
		level = slog.LevelDebug
	case c.quiet:
		level = slog.LevelError
	}
	c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	c.catalog = NewCatalog()
	if c.catalogPath != "" {
		layouts, err := LoadLayouts(c.catalogPath)
		if err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
		c.catalog.Merge(layouts)
	}

	if c.metricsPath != "" {
		c.metrics = NewMetrics()
	}
	return nil
}

// preparer builds a Preparer for a catalog entry. Options passed to
// NewCommand come first so the flags override them.
func (c *cli) preparer(name string, extra ...Option) (*Preparer, error) {
	layout, err := c.catalog.Lookup(name)
	if err != nil {
		return nil, err
	}

	opts := append([]Option{}, c.opts...)
	opts = append(opts, WithLogger(c.logger), WithConcurrency(c.concurrency))
	if c.metrics != nil {
		opts = append(opts, WithMetrics(c.metrics))
	}
	opts = append(opts, extra...)

	return NewPreparer(c.cfg, layout, opts...)
}

func listCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known datasets",
		Long:  "List the built-in datasets and those loaded with --catalog.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := make([]listEntry, 0, len(c.catalog))
			for _, name := range c.catalog.Names() {
				l := c.catalog[name]
				var size uint64
				for _, a := range l.Artifacts {
					size += a.Size
				}
				entries = append(entries, listEntry{
					Name:       l.Name,
					Family:     l.Family,
					Artifacts:  len(l.Artifacts),
					Size:       size,
					RecordSize: l.RecordSize(),
				})
			}
			return outputList(cmd.OutOrStdout(), entries, c.jsonOutput)
		},
	}
}

func prepareCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare <name>",
		Short: "Download and unpack a dataset",
		Long:  "Download a dataset's artifacts if needed, verify them, and unpack them into the cache.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []Option
			var bar *progressBar
			if !c.quiet && !c.jsonOutput {
				layout, err := c.catalog.Lookup(args[0])
				if err != nil {
					return err
				}
				bar = newProgressBar(cmd.OutOrStdout(), layout, c.verbose)
				defer bar.finish()
				extra = append(extra, WithProgress(bar.update))
			}

			p, err := c.preparer(args[0], extra...)
			if err != nil {
				return err
			}

			ds, err := p.Prepare(cmd.Context())
			if bar != nil {
				bar.finish()
			}
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), summarize(ds))
			}
			if !c.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Prepared %s in %s\n", ds.Name(), ds.Dir())
				for i, names := range ds.Labels() {
					fmt.Fprintf(cmd.OutOrStdout(), "  label scheme %d: %d names\n", i, len(names))
				}
			}
			return nil
		},
	}
}

func verifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <name>",
		Short: "Check the cached copy of a dataset",
		Long:  "Check cached artifacts against their size and digest and list missing dataset files. Never uses the network.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.preparer(args[0])
			if err != nil {
				return err
			}

			st, err := p.Verify(cmd.Context())
			if err != nil {
				return err
			}
			if err := outputStatus(cmd.OutOrStdout(), st, c.jsonOutput); err != nil {
				return err
			}
			if !st.Ready() {
				return fmt.Errorf("%w: %s is not prepared", ErrIncompleteLayout, args[0])
			}
			return nil
		},
	}
}

func inspectCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect <name>",
		Short: "Decode a dataset and show its shape",
		Long:  "Prepare a dataset if needed, then decode both splits and print label names and matrix shapes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.preparer(args[0])
			if err != nil {
				return err
			}

			ds, err := p.Prepare(cmd.Context())
			if err != nil {
				return err
			}

			info := summarize(ds)
			trainLabels, trainFeatures, err := ds.Train()
			if err != nil {
				return fmt.Errorf("decoding train split: %w", err)
			}
			info.TrainLabels, info.TrainFeatures = shapeOf(trainLabels), shapeOf(trainFeatures)

			testLabels, testFeatures, err := ds.Test()
			if err != nil {
				return fmt.Errorf("decoding test split: %w", err)
			}
			info.TestLabels, info.TestFeatures = shapeOf(testLabels), shapeOf(testFeatures)

			return outputInspect(cmd.OutOrStdout(), info, limit, c.jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "names", 10, "Label names shown per scheme (0 for all)")
	return cmd
}

func pathCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "path <name>",
		Short: "Print the dataset directory",
		Long:  "Print the filesystem path a dataset's files are unpacked into.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.preparer(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.Path())
			return nil
		},
	}
}

func removeCmd(c *cli) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a dataset from the cache",
		Long:  "Delete a dataset's unpacked files and its cached artifacts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.preparer(args[0])
			if err != nil {
				return err
			}

			// Confirmation prompt
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Remove %s from %s? [y/N]: ", args[0], p.Path())
				if !confirmPrompt(cmd.InOrStdin()) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			if err := p.Remove(); err != nil {
				return err
			}

			if !c.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

// confirmPrompt reads from stdin and returns true only if the user types 'y' or 'Y'.
// Returns false for empty input or any other response (default is no).
func confirmPrompt(r io.Reader) bool {
	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		response := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return response == "y" || response == "yes"
	}
	return false
}

// Output helpers

type listEntry struct {
	Name       string `json:"name"`
	Family     string `json:"family"`
	Artifacts  int    `json:"artifacts"`
	Size       uint64 `json:"size"`
	RecordSize int    `json:"record_size"`
}

// datasetInfo is the printable summary of a prepared dataset.
type datasetInfo struct {
	Name          string     `json:"name"`
	Dir           string     `json:"dir"`
	Labels        [][]string `json:"labels"`
	RecordSize    int        `json:"record_size"`
	TrainFiles    int        `json:"train_files"`
	TestFiles     int        `json:"test_files"`
	TrainLabels   []int      `json:"train_labels_shape,omitempty"`
	TrainFeatures []int      `json:"train_features_shape,omitempty"`
	TestLabels    []int      `json:"test_labels_shape,omitempty"`
	TestFeatures  []int      `json:"test_features_shape,omitempty"`
}

func summarize(ds *Dataset) datasetInfo {
	return datasetInfo{
		Name:       ds.Name(),
		Dir:        ds.Dir(),
		Labels:     ds.Labels(),
		RecordSize: ds.RecordSize(),
		TrainFiles: len(ds.TrainFiles()),
		TestFiles:  len(ds.TestFiles()),
	}
}

func shapeOf(m Matrix) []int {
	rows, cols := m.Shape()
	return []int{rows, cols}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputList(w io.Writer, entries []listEntry, asJSON bool) error {
	if asJSON {
		return writeJSON(w, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No datasets known")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFAMILY\tARTIFACTS\tSIZE\tRECORD")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d B\n",
			e.Name,
			e.Family,
			e.Artifacts,
			formatSize(int64(e.Size)),
			e.RecordSize,
		)
	}
	return tw.Flush()
}

func outputStatus(w io.Writer, st Status, asJSON bool) error {
	if asJSON {
		return writeJSON(w, st)
	}

	fmt.Fprintf(w, "Directory:    %s\n", st.Dir)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARTIFACT\tSTATE\tPATH")
	for _, a := range st.Artifacts {
		state := "missing or invalid"
		if a.Valid {
			state = "valid"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.URL, state, a.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if st.Ready() {
		fmt.Fprintln(w, "All dataset files present")
		return nil
	}
	fmt.Fprintln(w, "Missing files:")
	for _, name := range st.MissingFiles {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}

func outputInspect(w io.Writer, info datasetInfo, limit int, asJSON bool) error {
	if asJSON {
		return writeJSON(w, info)
	}

	fmt.Fprintf(w, "Dataset:      %s\n", info.Name)
	fmt.Fprintf(w, "Path:         %s\n", info.Dir)
	fmt.Fprintf(w, "Record size:  %d B\n", info.RecordSize)
	fmt.Fprintf(w, "Train:        labels %v, features %v (%d files)\n", info.TrainLabels, info.TrainFeatures, info.TrainFiles)
	fmt.Fprintf(w, "Test:         labels %v, features %v (%d files)\n", info.TestLabels, info.TestFeatures, info.TestFiles)

	for i, names := range info.Labels {
		shown := names
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}
		suffix := ""
		if len(shown) < len(names) {
			suffix = fmt.Sprintf(", ... (%d total)", len(names))
		}
		fmt.Fprintf(w, "Labels %d:     %s%s\n", i, strings.Join(shown, ", "), suffix)
	}
	return nil
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// progressBar renders aggregate download progress across a layout's artifacts.
// update is called from fetch goroutines.
type progressBar struct {
	w       io.Writer
	verbose bool

	mu        sync.Mutex
	total     int64
	completed map[string]int64
	start     time.Time
	started   bool
	ticker    *time.Ticker
	done      chan struct{}
}

func newProgressBar(w io.Writer, layout Layout, verbose bool) *progressBar {
	var total int64
	for _, a := range layout.Artifacts {
		total += int64(a.Size)
	}
	return &progressBar{w: w, verbose: verbose, total: total, completed: make(map[string]int64)}
}

func (b *progressBar) update(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch p.Phase {
	case PhaseCached:
		b.completed[p.URL] = p.BytesCompleted
		if b.verbose {
			fmt.Fprintf(b.w, "Using cached %s\n", p.URL)
		}
	case PhaseDownloading:
		b.completed[p.URL] = p.BytesCompleted
		if !b.started {
			b.started = true
			b.start = time.Now()
			// Hide cursor and start ticker for periodic updates
			fmt.Fprint(b.w, "\x1b[?25l")
			b.ticker = time.NewTicker(time.Second)
			b.done = make(chan struct{})
			go b.tick(b.ticker, b.done)
		}
		renderProgress(b.w, b.sum(), b.total, b.start)
	case PhaseUnpacking:
		b.stopLocked()
		if b.verbose && p.CurrentFile != "" {
			fmt.Fprintf(b.w, "Unpacking: %s\n", p.CurrentFile)
		}
	}
}

func (b *progressBar) tick(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			if b.started {
				renderProgress(b.w, b.sum(), b.total, b.start)
			}
			b.mu.Unlock()
		case <-done:
			return
		}
	}
}

// finish stops the ticker and restores the cursor. Safe to call repeatedly.
func (b *progressBar) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

func (b *progressBar) stopLocked() {
	if b.ticker != nil {
		b.ticker.Stop()
		close(b.done)
		b.ticker = nil
	}
	if b.started {
		renderProgress(b.w, b.sum(), b.total, b.start)
		fmt.Fprint(b.w, "\x1b[?25h\n") // Show cursor and new line
		b.started = false
	}
}

func (b *progressBar) sum() int64 {
	var n int64
	for _, c := range b.completed {
		n += c
	}
	return n
}

// renderProgress renders the progress bar to the writer.
// Format: Downloading [============>                 ] 45% (5.2 MB/s, elapsed: 30s, remaining: 2m 15s)
func renderProgress(w io.Writer, current, total int64, startTime time.Time) {
	elapsed := time.Since(startTime)

	var pct float64
	if total > 0 {
		pct = float64(current) / float64(total) * 100
	}

	var speed float64
	if elapsed.Seconds() > 0 && current > 0 {
		speed = float64(current) / elapsed.Seconds()
	}

	var remaining time.Duration
	if speed > 0 && current < total {
		remaining = time.Duration(float64(total-current)/speed) * time.Second
	}

	const barWidth = 30
	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}

	var bar string
	if filled >= barWidth {
		bar = strings.Repeat("=", barWidth)
	} else if filled > 0 {
		bar = strings.Repeat("=", filled) + ">" + strings.Repeat(" ", barWidth-filled-1)
	} else {
		bar = ">" + strings.Repeat(" ", barWidth-1)
	}

	// \r overwrites the line, \x1b[K clears to end of line
	fmt.Fprintf(w, "\r\x1b[KDownloading [%s] %.0f%% (%s, elapsed: %s, remaining: %s)",
		bar, pct, formatSpeed(speed), formatDuration(elapsed), formatDuration(remaining))
}

// formatSpeed formats bytes per second as KB/s or MB/s.
func formatSpeed(bytesPerSec float64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)

	if bytesPerSec >= MB {
		return fmt.Sprintf("%.1f MB/s", bytesPerSec/MB)
	}
	if bytesPerSec >= KB {
		return fmt.Sprintf("%.1f KB/s", bytesPerSec/KB)
	}
	return fmt.Sprintf("%.0f B/s", bytesPerSec)
}

// formatDuration formats a duration as human-readable text (e.g., "5s", "2m 30s", "1h 5m").
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)

	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if hours > 0 {
		if mins > 0 {
			return fmt.Sprintf("%dh %dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	if mins > 0 {
		if secs > 0 {
			return fmt.Sprintf("%dm %ds", mins, secs)
		}
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}

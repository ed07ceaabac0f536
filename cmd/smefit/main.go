package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smefit/adapters/events"
	"smefit/adapters/export"
	"smefit/app"
	"smefit/domain/core"
	"smefit/domain/sme"
	"smefit/internal"
	"smefit/internal/config"
	"smefit/internal/container"
	"smefit/internal/report"
	"smefit/internal/synth"
	"smefit/ports"
	"smefit/ui"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smefit",
		Short: "Subsequent memory effect analysis over iEEG spectral power",
	}

	rootCmd.AddCommand(
		newSynthCmd(),
		newRunCmd(),
		newLsCmd(),
		newShowCmd(),
		newExportCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newContainer reads an optional .env file, loads configuration from the
// environment, and wires the application container around it.
func newContainer() (*container.Container, error) {
	if err := godotenv.Load(); err != nil {
		internal.DefaultLogger.Debug("no .env file found, using system environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return container.New(cfg, internal.DefaultLogger)
}

func newSynthCmd() *cobra.Command {
	gen := synth.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "synth [subject]",
		Short: "Generate a synthetic subject into the power cache",
		Long: `Generate a synthetic free-recall subject: a 1/f spectral background with
a recalled-only oscillatory peak, plus a matching events workbook.

Example: smefit synth SYN001 --events 200 --electrodes 32 --seed 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen.Subject = args[0]
			return runSynth(gen)
		},
	}

	cmd.Flags().StringVar(&gen.Task, "task", gen.Task, "Task name recorded on the subject")
	cmd.Flags().IntVar(&gen.Montage, "montage", gen.Montage, "Montage number recorded on the subject")
	cmd.Flags().IntVar(&gen.Events, "events", gen.Events, "Number of encoding events")
	cmd.Flags().IntVar(&gen.Electrodes, "electrodes", gen.Electrodes, "Number of electrodes")
	cmd.Flags().IntVar(&gen.TimeBins, "time-bins", gen.TimeBins, "Time bins per event (0 for time-averaged power)")
	cmd.Flags().IntVar(&gen.NFreqs, "freqs", gen.NFreqs, "Number of log-spaced frequencies")
	cmd.Flags().Float64Var(&gen.FreqLo, "freq-lo", gen.FreqLo, "Lowest frequency in Hz")
	cmd.Flags().Float64Var(&gen.FreqHi, "freq-hi", gen.FreqHi, "Highest frequency in Hz")
	cmd.Flags().Int64Var(&gen.Seed, "seed", gen.Seed, "Random seed for deterministic generation")
	cmd.Flags().Float64Var(&gen.RecallRate, "recall-rate", gen.RecallRate, "Probability an item is recalled")
	cmd.Flags().Float64Var(&gen.NoiseSD, "noise", gen.NoiseSD, "Gaussian noise sigma in log10 power units")

	return cmd
}

func runSynth(gen synth.Config) error {
	c, err := newContainer()
	if err != nil {
		return err
	}

	data, err := synth.Generate(gen)
	if err != nil {
		return err
	}

	cache := c.PowerCache()
	if err := cache.Save(context.Background(), data); err != nil {
		return err
	}

	key := ports.SubjectKey{Subject: data.Subject, Task: data.Task, Montage: data.Montage}
	workbook := c.EventsPath(key)
	if err := os.MkdirAll(filepath.Dir(workbook), 0o755); err != nil {
		return err
	}
	if err := synth.WriteEventsXLSX(workbook, data.Events); err != nil {
		return err
	}

	recalled := 0
	for _, ev := range data.Events {
		if ev.Recalled {
			recalled++
		}
	}

	fmt.Printf("Generated subject %s (%s, montage %d)\n", data.Subject, data.Task, data.Montage)
	fmt.Printf("  Events: %d (%d recalled)\n", len(data.Events), recalled)
	fmt.Printf("  Power: %v, %d frequencies %.1f-%.1f Hz\n",
		data.Power.Shape(), len(data.Freqs), gen.FreqLo, gen.FreqHi)
	fmt.Printf("  Cache: %s\n", cache.Path(key))
	fmt.Printf("  Events workbook: %s\n", workbook)
	return nil
}

func newRunCmd() *cobra.Command {
	var (
		task         string
		montage      int
		strategy     string
		fitEachEvent bool
		welch        bool
		workers      int
		labeler      string
		maxLatencyMS float64
		eventsFile   string
		noSave       bool
		showReport   bool
		exportPath   string
	)

	cmd := &cobra.Command{
		Use:   "run [subject]",
		Short: "Run a recalled vs not-recalled contrast for a cached subject",
		Long: `Fit the spectral background per electrode, isolate residual oscillatory
power, and contrast recalled against not-recalled events at every
frequency and electrode. The run is persisted to the result store
unless --no-save is set.

Example: smefit run R1065J --task FR1 --strategy robust --workers 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runOptions{
				Subject:      args[0],
				Task:         task,
				Montage:      montage,
				Strategy:     strategy,
				FitEachEvent: fitEachEvent,
				Welch:        welch,
				Workers:      workers,
				Labeler:      labeler,
				MaxLatencyMS: maxLatencyMS,
				EventsFile:   eventsFile,
				NoSave:       noSave,
				ShowReport:   showReport,
				ExportPath:   exportPath,
			}
			return runAnalysis(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&task, "task", "FR1", "Task name of the cached subject")
	cmd.Flags().IntVar(&montage, "montage", 0, "Montage number of the cached subject")
	cmd.Flags().StringVar(&strategy, "strategy", "robust", "Fit strategy: robust or oscillation")
	cmd.Flags().BoolVar(&fitEachEvent, "fit-each-event", false, "Fit every event under the oscillation strategy")
	cmd.Flags().BoolVar(&welch, "welch", false, "Use Welch's unequal-variance t-test")
	cmd.Flags().IntVar(&workers, "workers", 0, "Fit pool size (0 uses SMEFIT_WORKERS, then one per CPU)")
	cmd.Flags().StringVar(&labeler, "labeler", "recalled", "Label source: recalled or latency")
	cmd.Flags().Float64Var(&maxLatencyMS, "max-latency-ms", 30000, "Latency cutoff for the latency labeler")
	cmd.Flags().StringVar(&eventsFile, "events-file", "", "Relabel from this events workbook or CSV instead of the cached events")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Skip persisting the run")
	cmd.Flags().BoolVar(&showReport, "report", false, "Print the markdown report after the run")
	cmd.Flags().StringVar(&exportPath, "export", "", "Also write the run's heatmap workbook to this xlsx path")

	return cmd
}

type runOptions struct {
	Subject      string
	Task         string
	Montage      int
	Strategy     string
	FitEachEvent bool
	Welch        bool
	Workers      int
	Labeler      string
	MaxLatencyMS float64
	EventsFile   string
	NoSave       bool
	ShowReport   bool
	ExportPath   string
}

func runAnalysis(ctx context.Context, opts runOptions) error {
	c, err := newContainer()
	if err != nil {
		return err
	}
	defer c.Shutdown()

	subject, err := core.ParseSubjectID(opts.Subject)
	if err != nil {
		return err
	}
	key := ports.SubjectKey{Subject: subject, Task: opts.Task, Montage: opts.Montage}

	data, err := c.PowerCache().Load(ctx, key)
	if err != nil {
		return err
	}

	if opts.EventsFile != "" {
		evs, err := events.NewReader(opts.EventsFile).ReadEvents()
		if err != nil {
			return err
		}
		if len(evs) != len(data.Events) {
			return fmt.Errorf("events file has %d rows, cached subject has %d events", len(evs), len(data.Events))
		}
		data.Events = evs
	}

	label, err := sme.LabelerByName(opts.Labeler, opts.MaxLatencyMS)
	if err != nil {
		return err
	}
	labels, err := data.Labels(label)
	if err != nil {
		return err
	}

	anaCfg, err := analysisConfig(c.Config, opts)
	if err != nil {
		return err
	}

	steps := []app.Step{
		app.AnalyzeStep{Service: c.Analysis(), Key: string(anaCfg.Strategy), Config: anaCfg},
	}
	if !opts.NoSave {
		store, err := c.Store()
		if err != nil {
			return err
		}
		steps = append(steps, app.PersistStep{Store: store})
	}
	if opts.ExportPath != "" {
		steps = append(steps, app.ExportStep{Path: opts.ExportPath})
	}

	st := &app.PipelineState{Data: data, Labels: labels}
	started := time.Now()
	if err := app.NewPipeline(c.Log, steps...).Run(ctx, st); err != nil {
		return err
	}

	res := st.Last
	fmt.Printf("\n=== SME CONTRAST RESULTS ===\n")
	fmt.Printf("Subject: %s (%s, montage %d)\n", data.Subject, data.Task, data.Montage)
	fmt.Printf("Strategy: %s | Mode: %s\n", anaCfg.Strategy, anaCfg.Mode())
	fmt.Printf("Events: %d | Recall rate: %.1f%%\n", len(labels), res.PRecall*100)
	fmt.Printf("Runtime: %v\n", time.Since(started).Round(time.Millisecond))

	rec := app.BuildRunRecord(app.AnalysisRequest{
		Subject: data.Subject,
		Task:    data.Task,
		Montage: data.Montage,
		Freqs:   data.Freqs,
		Power:   data.Power,
		Labels:  labels,
		Config:  anaCfg,
	}, res)
	if len(st.SavedRuns) > 0 {
		rec = st.SavedRuns[len(st.SavedRuns)-1]
		fmt.Printf("Saved run: %s\n", rec.ID)
	}
	if opts.ExportPath != "" {
		fmt.Printf("Workbook: %s\n", opts.ExportPath)
	}
	if opts.ShowReport {
		fmt.Printf("\n%s", report.RunMarkdown(rec))
	}
	return nil
}

// analysisConfig maps CLI flags onto an analysis configuration, falling
// back to SMEFIT_WORKERS when no pool size is given.
func analysisConfig(cfg *config.Config, opts runOptions) (sme.AnalysisConfig, error) {
	out := sme.DefaultConfig()
	switch strings.ToLower(opts.Strategy) {
	case "robust", string(sme.StrategyRobustRegression):
		out.Strategy = sme.StrategyRobustRegression
	case "oscillation", "osc", string(sme.StrategyOscillationDecomposition):
		out.Strategy = sme.StrategyOscillationDecomposition
	default:
		return out, fmt.Errorf("unknown strategy %q (use robust or oscillation)", opts.Strategy)
	}
	out.FitEachEvent = opts.FitEachEvent
	out.Welch = opts.Welch
	out.Workers = opts.Workers
	if out.Workers == 0 {
		out.Workers = cfg.Run.Workers
	}
	return out, nil
}

func newLsCmd() *cobra.Command {
	var (
		subject string
		task    string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List persisted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), subject, task, limit)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Only runs for this subject")
	cmd.Flags().StringVar(&task, "task", "", "Only runs for this task")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	return cmd
}

func runList(ctx context.Context, subject, task string, limit int) error {
	c, err := newContainer()
	if err != nil {
		return err
	}
	defer c.Shutdown()

	store, err := c.Store()
	if err != nil {
		return err
	}

	runs, err := store.ListRuns(ctx, ports.RunFilters{Subject: subject, Task: task, Limit: limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		dims := fmt.Sprintf("%dx%d", r.Freqs, r.Electrodes)
		if r.TimeBins > 0 {
			dims = fmt.Sprintf("%dx%dx%d", r.Freqs, r.Electrodes, r.TimeBins)
		}
		rows = append(rows, []string{
			r.ID.String(),
			r.Subject.String(),
			r.Task,
			r.Strategy,
			r.Mode,
			fmt.Sprintf("%.2f", r.PRecall),
			fmt.Sprintf("%d", r.Events),
			dims,
			r.CreatedAt.Time().Format("2006-01-02 15:04"),
		})
	}

	fmt.Println(renderTable(
		[]string{"ID", "Subject", "Task", "Strategy", "Mode", "P(recall)", "Events", "Dims", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
	return nil
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print the markdown report for a persisted run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), args[0])
		},
	}
	return cmd
}

func runShow(ctx context.Context, id string) error {
	c, err := newContainer()
	if err != nil {
		return err
	}
	defer c.Shutdown()

	runID, err := core.ParseRunID(id)
	if err != nil {
		return err
	}
	store, err := c.Store()
	if err != nil {
		return err
	}

	rec, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Print(report.RunMarkdown(*rec))
	return nil
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run-id] [output.xlsx]",
		Short: "Export a run's stat tensors to an Excel workbook",
		Long: `Write every stat tensor of a persisted run as frequency-by-electrode
grids in an Excel workbook, one sheet per tensor (per time bin for
time-resolved runs).

Example: smefit export 7f3b21ec-1f2a-4c3d-9e88-0a54c7f3d210 sme_R1065J.xlsx`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), args[0], args[1])
		},
	}
	return cmd
}

func runExport(ctx context.Context, id, path string) error {
	c, err := newContainer()
	if err != nil {
		return err
	}
	defer c.Shutdown()

	runID, err := core.ParseRunID(id)
	if err != nil {
		return err
	}
	store, err := c.Store()
	if err != nil {
		return err
	}

	rec, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := export.WriteWorkbook(path, *rec); err != nil {
		return err
	}
	fmt.Printf("Exported run %s to %s\n", rec.ID, path)
	return nil
}

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run browser and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (defaults to PORT, then 8080)")

	return cmd
}

func runServe(port string) error {
	c, err := newContainer()
	if err != nil {
		return err
	}
	defer c.Shutdown()

	if port == "" {
		port = c.Config.Server.Port
	}

	store, err := c.Store()
	if err != nil {
		return err
	}

	fmt.Printf("Serving on http://localhost:%s (store: %s)\n", port, c.Config.Store.Driver)
	return ui.NewApp(ui.Config{Port: port}, store, c.Log).Start()
}

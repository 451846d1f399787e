package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/okian/hitscore/internal/adapters/artifacts"
	"github.com/okian/hitscore/internal/adapters/video"
	"github.com/okian/hitscore/internal/app"
	"github.com/okian/hitscore/internal/config"
	"github.com/okian/hitscore/internal/domain/layout"
	"github.com/okian/hitscore/internal/domain/model"
	"github.com/okian/hitscore/internal/domain/scoring"
	"github.com/okian/hitscore/internal/domain/segment"
	"github.com/okian/hitscore/internal/synth"
	"github.com/okian/hitscore/internal/vision/annotate"
	"github.com/okian/hitscore/internal/vision/ball"
	"github.com/okian/hitscore/internal/vision/motion"
	"github.com/okian/hitscore/pkg/logger"
)

// cli holds state shared by every command once the root pre-run has loaded
// configuration.
type cli struct {
	cfgFile  string
	logLevel string
	cfg      *config.Config
	log      logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "hitscore",
		Short:         "hitscore - score ball impacts on a painted target from video",
		Long:          "Detects ball impacts in a fixed-camera recording and scores each one against calibrated target rings.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(c.scoreCmd(), c.roiCmd(), c.firstFrameCmd(), c.synthCmd())
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	if c.cfgFile != "" {
		if err := os.Setenv(config.EnvConfigFile, c.cfgFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	if err := logger.InitWithOptions(cmd.ErrOrStderr(), cfg.LogFormat); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	c.cfg = cfg
	c.log = logger.Get()
	return nil
}

func (c *cli) scoreCmd() *cobra.Command {
	var (
		layoutPath  string
		outputDir   string
		sensitivity float64
		cooldown    float64
		warmup      float64
		tolerance   float64
		workers     int
		frameBuffer string
		maxFrames   int
		selection   string
		metricsFile string
		noAnnotate  bool
		noPlot      bool
		sortLayout  bool
		clipROI     bool
	)

	cmd := &cobra.Command{
		Use:   "score <video>",
		Short: "Detect and score every impact in a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			flags := cmd.Flags()
			if flags.Changed("layout") {
				cfg.LayoutPath = layoutPath
			}
			if flags.Changed("output") {
				cfg.OutputDir = outputDir
			}
			if flags.Changed("sensitivity") {
				cfg.Sensitivity = sensitivity
			}
			if flags.Changed("cooldown") {
				cfg.CooldownSeconds = cooldown
			}
			if flags.Changed("warmup") {
				cfg.WarmupSeconds = warmup
			}
			if flags.Changed("tolerance") {
				cfg.HitTolerance = tolerance
			}
			if flags.Changed("workers") {
				cfg.WorkerCount = workers
			}
			if flags.Changed("frame-buffer") {
				cfg.FrameBuffer = frameBuffer
			}
			if flags.Changed("max-frames") {
				cfg.MaxFrames = maxFrames
			}
			if flags.Changed("selection") {
				cfg.ContourSelection = selection
			}
			if flags.Changed("metrics-file") {
				cfg.MetricsFile = metricsFile
			}
			if noAnnotate {
				cfg.Annotate = false
			}
			if noPlot {
				cfg.MotionPlot = false
			}
			if sortLayout {
				cfg.SortLayout = true
			}
			if clipROI {
				cfg.ClipROI = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			det, err := c.detector(cfg)
			if err != nil {
				return err
			}
			cal := layout.FileCalibrator{Path: cfg.LayoutPath, Options: layoutOptions(cfg)}
			l, err := det.Calibrate(cmd.Context(), args[0], cal)
			if err != nil {
				return err
			}
			res, err := det.Run(cmd.Context(), args[0], l)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, cfg.OutputDir)
		},
	}

	f := cmd.Flags()
	f.StringVar(&layoutPath, "layout", "", "scoring layout JSON file")
	f.StringVarP(&outputDir, "output", "o", "", "output directory")
	f.Float64Var(&sensitivity, "sensitivity", segment.DefaultSensitivity, "threshold = mean + sensitivity*std")
	f.Float64Var(&cooldown, "cooldown", segment.DefaultCooldown.Seconds(), "minimum seconds between impacts")
	f.Float64Var(&warmup, "warmup", segment.DefaultWarmup.Seconds(), "seconds skipped at the start")
	f.Float64Var(&tolerance, "tolerance", scoring.DefaultTolerance, "ring tolerance in pixels")
	f.IntVar(&workers, "workers", 0, "localization workers (0 = all CPUs)")
	f.StringVar(&frameBuffer, "frame-buffer", video.BufferMemory, "where frames wait for segmentation: memory or disk")
	f.IntVar(&maxFrames, "max-frames", 0, "reject clips longer than this many frames (0 = no cap)")
	f.StringVar(&selection, "selection", string(ball.SelectFirst), "contour selection: first or largest")
	f.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	f.BoolVar(&noAnnotate, "no-annotate", false, "skip annotated impact images")
	f.BoolVar(&noPlot, "no-plot", false, "skip the motion plot")
	f.BoolVar(&sortLayout, "sort-layout", false, "sort rings by radius instead of rejecting unordered layouts")
	f.BoolVar(&clipROI, "clip-roi", false, "score the part of the region inside the frame instead of failing")
	return cmd
}

func layoutOptions(cfg *config.Config) []layout.Option {
	return []layout.Option{
		layout.WithRadiusTable(cfg.RadiusTable),
		layout.WithSortByRadius(cfg.SortLayout),
	}
}

func (c *cli) detector(cfg *config.Config) (*app.Detector, error) {
	lower, upper, err := cfg.HSVRange()
	if err != nil {
		return nil, err
	}
	sel, err := ball.ParseSelection(cfg.ContourSelection)
	if err != nil {
		return nil, err
	}

	opts := []app.Option{
		app.WithLogger(c.log),
		app.WithROIMargin(cfg.ROIMargin),
		app.WithROIClipping(cfg.ClipROI),
		app.WithSegmentOptions(
			segment.WithSensitivity(cfg.Sensitivity),
			segment.WithCooldown(seconds(cfg.CooldownSeconds)),
			segment.WithWarmup(seconds(cfg.WarmupSeconds)),
		),
		app.WithMotionOptions(motion.WithBlurKernel(cfg.BlurKernel)),
		app.WithBallOptions(
			ball.WithHSVRange(lower, upper),
			ball.WithDilateIterations(cfg.DilateIterations),
			ball.WithAreaRange(cfg.MinBallArea, cfg.MaxBallArea),
			ball.WithSelection(sel),
		),
		app.WithEvaluator(scoring.NewEvaluator(scoring.WithTolerance(cfg.HitTolerance))),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithFrameBuffer(cfg.FrameBuffer, ""),
		app.WithMaxFrames(cfg.MaxFrames),
		app.WithMetricsFile(cfg.MetricsFile),
	}
	if cfg.OutputDir != "" {
		w, err := artifacts.NewWriter(cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithArtifacts(w, cfg.Annotate, cfg.MotionPlot))
	}
	return app.New(opts...), nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func printResult(w io.Writer, res *model.Result, outputDir string) error {
	if _, err := fmt.Fprintf(w, "run %s: %d frames at %.2f fps, threshold %.1f\n",
		res.RunID, res.FrameCount, res.FPS, res.Threshold); err != nil {
		return err
	}
	for _, e := range res.Events {
		if _, err := fmt.Fprintf(w, "  #%d %s\n", e.Ordinal, annotate.Label(e)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "total score: %d\n", res.TotalScore); err != nil {
		return err
	}
	if outputDir != "" {
		_, err := fmt.Fprintf(w, "results written to %s\n", filepath.Join(outputDir, artifacts.ResultFile))
		return err
	}
	return nil
}

func (c *cli) roiCmd() *cobra.Command {
	var layoutPath, framePath, outPath string
	var sortLayout bool

	cmd := &cobra.Command{
		Use:   "roi",
		Short: "Print the region of interest for a layout, optionally drawing it on a frame",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.cfg
			if cmd.Flags().Changed("layout") {
				cfg.LayoutPath = layoutPath
			}
			if sortLayout {
				cfg.SortLayout = true
			}
			l, err := layout.Load(cmd.Context(), cfg.LayoutPath, layoutOptions(cfg)...)
			if err != nil {
				return err
			}
			roi, err := layout.ComputeROI(l, cfg.ROIMargin)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "roi %s (%dx%d)\n",
				roi, roi.X2-roi.X1, roi.Y2-roi.Y1); err != nil {
				return err
			}

			if framePath == "" {
				return nil
			}
			if outPath == "" {
				return fmt.Errorf("--out is required with --frame")
			}
			frame := gocv.IMRead(framePath, gocv.IMReadColor)
			defer frame.Close()
			if frame.Empty() {
				return fmt.Errorf("%w: cannot read %s", model.ErrDecode, framePath)
			}
			img := annotate.Layout(frame, roi, l)
			defer img.Close()
			if ok := gocv.IMWrite(outPath, img); !ok {
				return fmt.Errorf("%w: %s", artifacts.ErrImageWrite, outPath)
			}
			c.log.Info(cmd.Context(), "layout overlay written", logger.String("path", outPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&layoutPath, "layout", "", "scoring layout JSON file")
	cmd.Flags().StringVar(&framePath, "frame", "", "reference frame to draw the layout on")
	cmd.Flags().StringVar(&outPath, "out", "", "where to write the overlay image")
	cmd.Flags().BoolVar(&sortLayout, "sort-layout", false, "sort rings by radius instead of rejecting unordered layouts")
	return cmd
}

func (c *cli) firstFrameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "first-frame <video> <out image>",
		Short: "Extract the calibration reference frame from a recording",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := video.ExtractFirstFrame(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			c.log.Info(cmd.Context(), "first frame written",
				logger.String("video", args[0]), logger.String("path", args[1]))
			return nil
		},
	}
}

func (c *cli) synthCmd() *cobra.Command {
	var layoutOut string

	cmd := &cobra.Command{
		Use:   "synth [out.avi]",
		Short: "Render a synthetic practice clip and its layout file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := synth.TempVideoPath(".")
			if len(args) == 1 {
				out = args[0]
			}
			clip := synth.DefaultClip()
			if err := synth.WriteVideo(cmd.Context(), out, clip); err != nil {
				return err
			}
			if layoutOut != "" {
				if err := synth.WriteLayout(layoutOut, clip.Layout); err != nil {
					return err
				}
			}
			c.log.Info(cmd.Context(), "synthetic clip written",
				logger.String("video", out),
				logger.String("layout", layoutOut),
				logger.Int("frames", clip.Frames),
				logger.Int("hits", len(clip.Hits)),
			)
			_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&layoutOut, "layout-out", "", "also write the matching layout file here")
	return cmd
}

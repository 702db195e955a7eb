package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/chazu/threadforge/pkg/config"
	"github.com/chazu/threadforge/pkg/execute"
	"github.com/chazu/threadforge/pkg/feature"
	"github.com/chazu/threadforge/pkg/logging"
	"github.com/chazu/threadforge/pkg/params"
	"github.com/chazu/threadforge/pkg/plan"
	"github.com/chazu/threadforge/pkg/thread"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("ok")
	failMark = color.New(color.FgRed).Sprint("FAILED")
	dim      = color.New(color.Faint).SprintFunc()
	heading  = color.New(color.Bold).SprintFunc()
)

// cli holds the state shared by the subcommands. app is built by the root
// command's pre-run hook once flags are parsed.
type cli struct {
	configPath string
	logLevel   string
	outputDir  string
	cells      int
	stats      bool

	out    io.Writer
	errOut io.Writer
	log    *zap.Logger
	app    *App
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:   "threadforge",
		Short: "Generate screw-thread geometry",
		Long: `threadforge builds male and female screw threads from a handful of
dimensions and writes them as STL. A calibration run prints a row of
samples whose notch width and diameters step apart, for dialing in a
printer's tolerances.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default ~/.config/threadforge/config.yaml)")
	pf.StringVar(&c.logLevel, "log-level", "", "override the configured log level")
	pf.StringVarP(&c.outputDir, "output-dir", "o", "", "override the configured STL output directory")
	pf.IntVar(&c.cells, "cells", 0, "override the configured mesh resolution")
	pf.BoolVar(&c.stats, "stats", false, "print backend call counts when done")

	root.AddCommand(
		c.buildCmd(),
		c.calibrateCmd(),
		c.generateCmd(),
		c.runCmd(),
		c.presetsCmd(),
		c.planCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if flags.Changed("output-dir") {
		cfg.Render.OutputDir = c.outputDir
	}
	if flags.Changed("cells") {
		cfg.Render.Cells = c.cells
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.log, err = logging.New(cfg.Log, c.errOut)
	if err != nil {
		return err
	}
	c.app, err = NewApp(cfg, c.log)
	return err
}

// threadFlags binds one flag per registry parameter plus --at.
type threadFlags struct {
	values params.Values
	at     []float64
	fs     *pflag.FlagSet
}

func bindThreadFlags(cmd *cobra.Command, atUsage string) *threadFlags {
	tf := &threadFlags{values: params.Defaults(), fs: cmd.Flags()}
	params.New(thread.NewCatalog()).BindFlags(tf.fs, &tf.values)
	tf.fs.Float64SliceVar(&tf.at, "at", nil, atUsage)
	return tf
}

// resolve overlays the flags given on the command line onto the configured
// defaults, then applies --preset.
func (tf *threadFlags) resolve(a *App) (params.Values, error) {
	v := a.Defaults()
	a.Params().Overlay(&v, tf.values, tf.fs.Changed)
	return a.Resolve(v, tf.fs.Changed)
}

// target returns the --at point, or nil when the flag was not given.
func (tf *threadFlags) target() (*r3.Vec, error) {
	if !tf.fs.Changed("at") {
		return nil, nil
	}
	if len(tf.at) != 3 {
		return nil, fmt.Errorf("--at takes x,y,z, got %d values", len(tf.at))
	}
	return &r3.Vec{X: tf.at[0], Y: tf.at[1], Z: tf.at[2]}, nil
}

func (tf *threadFlags) targetOrOrigin() (r3.Vec, error) {
	at, err := tf.target()
	if err != nil || at == nil {
		return r3.Vec{}, err
	}
	return *at, nil
}

func (c *cli) buildCmd() *cobra.Command {
	var tf *threadFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a single thread",
		Example: `  threadforge build --preset "G 1/4"
  threadforge build --preset "G 1/4" --male=false --at 20,0,0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := tf.resolve(c.app)
			if err != nil {
				return err
			}
			at, err := tf.targetOrOrigin()
			if err != nil {
				return err
			}
			spec, err := v.Spec()
			if err != nil {
				return err
			}
			res, err := c.app.Build(spec, at)
			if err != nil {
				return err
			}
			printBuild(c.out, res)
			return c.printStats()
		},
	}
	tf = bindThreadFlags(cmd, "thread origin x,y,z (default 0,0,0)")
	return cmd
}

func (c *cli) calibrateCmd() *cobra.Command {
	var tf *threadFlags
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Build a row of calibration samples on a base plate",
		Long: `Build --generation-count samples in a row along +X. Sample i widens the
notch by (i+2)/3 notch steps, the major diameter by (i+1)/3 major steps and
the minor diameter by i/3 minor steps (integer division).`,
		Example: `  threadforge calibrate --preset "G 1/8" --generation-count 6 --notch-width-step 0.05`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := tf.resolve(c.app)
			if err != nil {
				return err
			}
			origin, err := tf.targetOrOrigin()
			if err != nil {
				return err
			}
			spec, err := v.Spec()
			if err != nil {
				return err
			}
			res, err := c.app.Calibrate(feature.BatchRequest{
				Base: spec, Count: v.GenerationCount, Steps: v.Steps(), Origin: origin,
			})
			if err != nil {
				return err
			}
			printCalibration(c.out, res)
			if err := c.printStats(); err != nil {
				return err
			}
			return res.Report.Err()
		},
	}
	tf = bindThreadFlags(cmd, "plate origin x,y,z (default 0,0,0)")
	return cmd
}

func (c *cli) generateCmd() *cobra.Command {
	var tf *threadFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build a single thread when --at is given, otherwise a calibration batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := tf.resolve(c.app)
			if err != nil {
				return err
			}
			at, err := tf.target()
			if err != nil {
				return err
			}
			out, err := c.app.Generate(v, at)
			if err != nil {
				return err
			}
			if out.Build != nil {
				printBuild(c.out, out.Build)
				return c.printStats()
			}
			printCalibration(c.out, out.Calibration)
			if err := c.printStats(); err != nil {
				return err
			}
			return out.Calibration.Report.Err()
		},
	}
	tf = bindThreadFlags(cmd, "target point x,y,z; selects single-thread mode")
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script>",
		Short: "Run a job script",
		Long: `Evaluate a job script and build every thread and calibration job it
requests, in order. Use - to read the script from stdin.

  (def-preset "M10" :length 12 :major 10 :minor 8.4 :pitch 1.5 :cut-angle 30 :notch-width 0.3)
  (thread :preset "M10" :at (vec3 0 0 0))
  (calibrate :preset "M10" :count 4 :notch-step 0.05 :at (vec3 0 30 0))`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readScript(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			results, err := c.app.RunScript(source)
			if err != nil {
				return err
			}
			failed := 0
			for _, jr := range results {
				fmt.Fprintf(c.out, "%s %d %s\n", heading("job"), jr.Index, jr.Job.Kind)
				switch {
				case jr.Err != nil:
					failed++
					fmt.Fprintf(c.out, "  %s %v\n", failMark, jr.Err)
				case jr.Build != nil:
					printBuild(c.out, jr.Build)
				case jr.Calibration != nil:
					printCalibration(c.out, jr.Calibration)
					if jr.Calibration.Report.Err() != nil {
						failed++
					}
				}
			}
			if err := c.printStats(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(results))
			}
			return nil
		},
	}
}

func readScript(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	return string(b), nil
}

func (c *cli) presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the thread presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range c.app.Catalog().Presets() {
				angle := math.Round(p.CutAngle*180/math.Pi*1e6) / 1e6
				fmt.Fprintf(c.out, "%-12s %s\n", heading(p.Name), dim(fmt.Sprintf(
					"length %g  major %g  minor %g  pitch %g  angle %g°  notch %g",
					p.Length, p.Major, p.Minor, p.Pitch, angle, p.NotchWidth)))
			}
			return nil
		},
	}
}

func (c *cli) planCmd() *cobra.Command {
	var (
		tf     *threadFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the geometry plan without building it",
		Long: `Print the plan generate would execute: one plan for a single thread
when --at is given, otherwise the plate plan followed by one plan per
calibration sample.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := tf.resolve(c.app)
			if err != nil {
				return err
			}
			at, err := tf.target()
			if err != nil {
				return err
			}
			plans, err := c.app.PlanFor(v, at)
			if err != nil {
				return err
			}
			return writePlans(c.out, plans, plan.Format(strings.ToLower(format)))
		},
	}
	tf = bindThreadFlags(cmd, "target point x,y,z; selects single-thread mode")
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	return cmd
}

// writePlans writes YAML plans as a multi-document stream and JSON plans
// one document after another.
func writePlans(w io.Writer, plans []*plan.Plan, f plan.Format) error {
	for i, p := range plans {
		b, err := p.Encode(f)
		if err != nil {
			return err
		}
		if i > 0 && f != plan.FormatJSON {
			fmt.Fprintln(w, "---")
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		if f == plan.FormatJSON {
			fmt.Fprintln(w)
		}
	}
	return nil
}

func (c *cli) printStats() error {
	if !c.stats {
		return nil
	}
	counts, err := execute.OpCounts(c.app.Gatherer())
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, counts[k])
	}
	fmt.Fprintf(c.out, "%s %s\n", heading("backend calls:"), strings.Join(parts, " "))
	return nil
}

func printBuild(w io.Writer, res *BuildResult) {
	s := res.Spec
	fmt.Fprintf(w, "%s %s thread %g x %g, length %g at (%g, %g, %g)\n",
		okMark, s.Sense(), s.MajorDiameter(), s.Pitch(), s.Length(),
		res.Origin.X, res.Origin.Y, res.Origin.Z)
	printPart(w, &res.Part)
}

func printCalibration(w io.Writer, res *CalibrationResult) {
	b := res.Batch
	mark := okMark
	if res.Report.Plate != nil {
		mark = failMark
	}
	fmt.Fprintf(w, "%s plate %g x %g\n", mark, b.PlateLength, b.PlateWidth)
	if res.Report.Plate != nil {
		fmt.Fprintf(w, "    %v\n", res.Report.Plate)
	}
	for _, s := range res.Report.Samples {
		label := fmt.Sprintf("sample %d  notch %+g  major %+g  minor %+g",
			s.Index, s.Offsets.Notch, s.Offsets.Major, s.Offsets.Minor)
		if s.Err != nil {
			fmt.Fprintf(w, "%s %s\n    %v\n", failMark, label, s.Err)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", okMark, label)
	}
	printPart(w, res.Part)
}

func printPart(w io.Writer, p *Part) {
	if p == nil {
		return
	}
	fmt.Fprintf(w, "  %s %s\n", p.Path, dim(fmt.Sprintf("(%d bodies, %d triangles)", p.Bodies, p.Triangles)))
}

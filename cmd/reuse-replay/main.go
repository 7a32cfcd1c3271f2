package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/reuse"
	"github.com/outofforest/reuse/scope"
)

var (
	blockShift       uint8
	maxPathLength    uint64
	computeFootprint bool
	profileErrors    bool
	noCarry          bool
	exactDistances   bool
	strictChecks     bool
	sampleMask       uint64
	sampleValue      uint64
	scopeTreePath    string
	batchSize        int
	outputPath       string
	jsonOut          bool
	printMetrics     bool
)

var rootCmd = &cobra.Command{
	Use:   "reuse-replay <trace>...",
	Short: "Compute memory reuse distances from recorded event traces",
	Long: `reuse-replay replays per-thread event traces through the reuse-distance engine.
Every trace file is analyzed by an independent session and the results are merged.

Example:
  reuse-replay thread-0.bin thread-1.bin
  reuse-replay --footprint --profile-errors --json -o report.json thread-0.bin`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd.Context(), args)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.Uint8Var(&blockShift, "block-shift", reuse.DefaultConfig.BlockShift,
		"Number of low address bits ignored when mapping addresses to blocks")
	flags.Uint64Var(&maxPathLength, "path-length", reuse.DefaultConfig.MaxPathLength,
		"Tree path length triggering rebalancing")
	flags.BoolVar(&computeFootprint, "footprint", false, "Compute scope footprints")
	flags.BoolVar(&profileErrors, "profile-errors", false, "Collect histogram of scope errors")
	flags.BoolVar(&noCarry, "no-carry", false, "Don't resolve scopes carrying the reuse")
	flags.BoolVar(&exactDistances, "exact", false, "Don't approximate long distances")
	flags.BoolVar(&strictChecks, "strict", false, "Report scopes not on top and not in stack")
	flags.Uint64Var(&sampleMask, "sample-mask", 0, "Block sampling mask")
	flags.Uint64Var(&sampleValue, "sample-value", 0, "Block sampling value")
	flags.StringVar(&scopeTreePath, "scope-tree", "", "YAML file with static scope nesting")
	flags.IntVar(&batchSize, "batch-size", 4096, "Number of events delivered to session at once")
	flags.StringVarP(&outputPath, "output", "o", "", "Output file, standard output is used if empty")
	flags.BoolVar(&jsonOut, "json", false, "Output in JSON format")
	flags.BoolVar(&printMetrics, "metrics", false, "Log collected metrics")
}

func main() {
	log := logger.New(logger.DefaultConfig)
	ctx, cancel := signal.NotifyContext(logger.WithLogger(context.Background(), log), os.Interrupt,
		syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error("Replay failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}

func runReplay(ctx context.Context, paths []string) error {
	config := reuse.DefaultConfig
	config.BlockShift = blockShift
	config.MaxPathLength = maxPathLength
	config.ComputeFootprint = computeFootprint
	config.ProfileErrors = profileErrors
	config.ComputeCarry = !noCarry
	config.ApproximateDistances = !exactDistances
	config.StrictScopeChecks = strictChecks
	config.SampleMask = sampleMask
	config.SampleValue = sampleValue

	if scopeTreePath != "" {
		tree, err := scope.LoadStaticTree(scopeTreePath)
		if err != nil {
			return err
		}
		config.ScopeTree = tree
	}

	reg := prometheus.NewRegistry()
	config.Metrics = reuse.NewMetrics(reg)

	report, err := reuse.RunTraces(ctx, config, paths, batchSize)
	if err != nil {
		return err
	}

	if printMetrics {
		if err := logMetrics(ctx, reg); err != nil {
			return err
		}
	}

	var out io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return errors.WithStack(err)
		}
		defer f.Close()
		out = f
	}

	if jsonOut {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return errors.WithStack(encoder.Encode(report))
	}
	return report.WriteText(out)
}

func logMetrics(ctx context.Context, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return errors.WithStack(err)
	}

	log := logger.Get(ctx)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, l := range m.GetLabel() {
				name += fmt.Sprintf("{%s=%s}", l.GetName(), l.GetValue())
			}

			value := m.GetCounter().GetValue()
			if g := m.GetGauge(); g != nil {
				value = g.GetValue()
			}
			log.Info("Metric", zap.String("name", name), zap.Float64("value", value))
		}
	}
	return nil
}

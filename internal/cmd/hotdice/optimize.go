package hotdice

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/louisbranch/hotdice/internal/catalog"
	"github.com/louisbranch/hotdice/internal/core/dice"
	"github.com/louisbranch/hotdice/internal/core/policy"
	"github.com/louisbranch/hotdice/internal/core/scoring"
	"github.com/louisbranch/hotdice/internal/core/search"
	"github.com/louisbranch/hotdice/internal/core/simulate"
	"github.com/louisbranch/hotdice/internal/platform/otel"
	"github.com/louisbranch/hotdice/internal/rank"
	"github.com/louisbranch/hotdice/internal/settings"
	"github.com/louisbranch/hotdice/internal/storage/sqlite"
	"github.com/louisbranch/hotdice/internal/workflow"
)

type optimizeFlags struct {
	catalogPath  string
	planPath     string
	target       int
	numTurns     int
	risk         string
	objective    string
	perDie       int
	limit        int
	sample       int
	workers      int
	seed         int64
	noEfficiency bool
	noCache      bool
	top          int
	progressMS   int
}

func optimizeCmd() *cobra.Command {
	var flags optimizeFlags
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search the inventory for the best six-die loadout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.catalogPath, "catalog", "dice.json", "path to the dice probability catalog")
	cmd.Flags().StringVar(&flags.planPath, "plan", "", "path to a YAML efficiency plan (defaults to the built-in plan)")
	cmd.Flags().IntVar(&flags.target, "target", settings.DefaultTarget, "score a loadout must accumulate")
	cmd.Flags().IntVar(&flags.numTurns, "turns", settings.DefaultNumTurns, "campaign length when every loadout is evaluated in one pass (staged runs use the plan's per-stage turns)")
	cmd.Flags().StringVar(&flags.risk, "risk", string(policy.Balanced), "risk profile: conservative, balanced or aggressive")
	cmd.Flags().StringVar(&flags.objective, "objective", string(rank.MaxScore), "rank objective")
	cmd.Flags().IntVar(&flags.perDie, "per-die", catalog.DefaultPerDie, "inventory per weighted die design")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "cap on enumerated loadouts (0 = all)")
	cmd.Flags().IntVar(&flags.sample, "sample", 0, "sample this many quality-weighted loadouts instead of enumerating")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "evaluation workers (0 = one per CPU)")
	cmd.Flags().Int64Var(&flags.seed, "seed", 1, "efficiency seed for pilot stages")
	cmd.Flags().BoolVar(&flags.noEfficiency, "no-efficiency", false, "evaluate every loadout at full fidelity")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "run without the result cache")
	cmd.Flags().IntVar(&flags.top, "top", 10, "how many ranked loadouts to print")
	cmd.Flags().IntVar(&flags.progressMS, "progress-interval", 1000, "progress interval in milliseconds")
	return cmd
}

func runOptimize(cmd *cobra.Command, flags optimizeFlags) error {
	ctx := cmd.Context()
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	shutdownTracing, err := otel.Setup(ctx, "hotdice")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		_ = shutdownTracing(ctx)
	}()

	cat, err := catalog.LoadFile(flags.catalogPath)
	if err != nil {
		return err
	}

	set, err := buildSettings(flags)
	if err != nil {
		return err
	}

	inventory := catalog.Inventory(cat, flags.perDie)
	total := search.CountCombinations(inventory, dice.LoadoutSize)
	var loadouts []dice.CountVector
	if flags.sample > 0 {
		loadouts = search.RandomLoadouts(inventory, cat.Qualities(), dice.LoadoutSize, flags.sample, flags.seed)
	} else {
		loadouts = search.Enumerate(inventory, dice.LoadoutSize, flags.limit)
	}
	log.Printf("catalog: %d dice, %d feasible loadouts, evaluating %d", len(cat), total, len(loadouts))

	workers := flags.workers
	if workers == 0 {
		workers = cfg.Workers
	}
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	opts := []workflow.Option{
		workflow.WithWorkers(workers),
		workflow.WithProgress(printProgress, time.Duration(flags.progressMS)*time.Millisecond),
	}

	var store *sqlite.Store
	if !flags.noCache {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
		var storeOpts []sqlite.Option
		if cfg.CacheAsync {
			storeOpts = append(storeOpts, sqlite.WithAsyncWrites(cfg.CacheMaxPending, cfg.FlushInterval()))
		}
		store, err = sqlite.Open(cfg.CachePath(), storeOpts...)
		if err != nil {
			log.Printf("cache unavailable, continuing without it: %v", err)
		} else {
			defer func() {
				if err := store.Shutdown(10 * time.Second); err != nil {
					log.Printf("cache shutdown: %v", err)
				}
			}()
			opts = append(opts, workflow.WithCache(store))
		}
	}

	runner := workflow.New(scoring.NewTable(), opts...)
	outcome, err := runner.Run(ctx, loadouts, cat, set)
	if err != nil {
		return err
	}

	printResults(cmd, cat, set, outcome, flags.top)
	printTelemetry(outcome.Telemetry)
	return nil
}

func buildSettings(flags optimizeFlags) (settings.Optimization, error) {
	set := settings.Default()
	set.Target = flags.target
	set.Cap = flags.target + 1500
	set.NumTurns = flags.numTurns
	set.Risk = policy.Kind(flags.risk)
	set.Objective = rank.Objective(flags.objective)
	set.EfficiencySeed = flags.seed
	set.EfficiencyEnabled = !flags.noEfficiency

	if flags.planPath != "" {
		stages, err := loadPlan(flags.planPath)
		if err != nil {
			return settings.Optimization{}, err
		}
		set.Stages = stages
	}
	if err := set.Validate(); err != nil {
		return settings.Optimization{}, err
	}
	return set, nil
}

// loadPlan reads a YAML efficiency plan and normalizes its rows.
func loadPlan(path string) ([]settings.Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	var rows []map[string]any
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	stages, errs := settings.NormalizeStages(rows)
	for _, err := range errs {
		log.Printf("plan %s: dropped row: %v", path, err)
	}
	return stages, nil
}

func printProgress(p workflow.Progress) {
	log.Printf("stage %d/%d (%s): %d/%d evaluated, %d cached, %d to compute, %s elapsed",
		p.StageIndex+1, p.StageCount, p.Kind, p.Processed, p.Total,
		p.CacheHits, p.CacheMisses, p.Elapsed.Round(time.Millisecond))
}

func printResults(cmd *cobra.Command, cat dice.Catalog, set settings.Optimization, outcome *workflow.Outcome, top int) {
	out := cmd.OutOrStdout()
	n := len(outcome.Results)
	if top > 0 && top < n {
		n = top
	}

	fmt.Fprintf(out, "objective %s, target %d, risk %s\n", set.Objective, set.Target, set.Risk)
	for i := 0; i < n; i++ {
		res := outcome.Results[i]
		fmt.Fprintf(out, "%2d. %s\n", i+1, formatLoadout(cat, res.Counts))
		fmt.Fprintf(out, "    ev turns %.2f  ev points %.1f ± %.1f  p50 %s  p90 %s\n",
			res.Metrics.EVTurns, res.Metrics.EVPoints, res.Metrics.EVPointsSE,
			formatTurns(res.Metrics.P50Turns), formatTurns(res.Metrics.P90Turns))
		if line := formatReach(res); line != "" {
			fmt.Fprintf(out, "    reach: %s\n", line)
		}
		if line := formatBuckets(res); line != "" {
			fmt.Fprintf(out, "    hands: %s\n", line)
		}
	}
}

func formatLoadout(cat dice.Catalog, counts dice.CountVector) string {
	var parts []string
	for i, n := range counts {
		if n == 0 {
			continue
		}
		name := fmt.Sprintf("die %d", i)
		if i < len(cat) {
			name = cat[i].Name
		}
		parts = append(parts, fmt.Sprintf("%d×%s", n, name))
	}
	return strings.Join(parts, " + ")
}

func formatTurns(v float64) string {
	if v > float64(1<<30) {
		return "∞"
	}
	return fmt.Sprintf("%.0f", v)
}

func formatReach(res simulate.Result) string {
	if len(res.Metrics.PWithin) == 0 {
		return ""
	}
	turns := make([]int, 0, len(res.Metrics.PWithin))
	for t := range res.Metrics.PWithin {
		turns = append(turns, t)
	}
	sort.Ints(turns)
	var parts []string
	for _, t := range turns {
		parts = append(parts, fmt.Sprintf("≤%d turns %.0f%%", t, 100*res.Metrics.PWithin[t]))
	}
	return strings.Join(parts, ", ")
}

func formatBuckets(res simulate.Result) string {
	buckets := rank.GroupedHandPercentages(res.TagCounts, res.TotalGroups)
	order := []string{
		rank.BucketSingleOne, rank.BucketKind3, rank.BucketKind4,
		rank.BucketKind5, rank.BucketKind6, rank.BucketShortRun, rank.BucketFullRun,
	}
	var parts []string
	for _, b := range order {
		if buckets[b] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d%%", b, buckets[b]))
		}
	}
	return strings.Join(parts, "  ")
}

func printTelemetry(tel workflow.Telemetry) {
	for _, st := range tel.Stages {
		log.Printf("stage %d (%s): %d candidates, %d evaluated, %d hits, %d survivors, wall %s",
			st.Stage+1, st.Kind, st.Candidates, st.Evaluated, st.CacheHits, st.Survivors,
			st.Wall.Round(time.Millisecond))
	}
	log.Printf("run %s: %d evaluated, %d cache hits, wall %s",
		tel.RunID, tel.TotalEvaluated, tel.TotalCacheHits, tel.Wall.Round(time.Millisecond))
}

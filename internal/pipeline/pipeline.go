// Package pipeline implements the collection pipeline: fetch raw
// provider records, normalize them into the canonical schema, dedupe,
// compute derived signals, filter, and rank.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trendscope/viralscan/internal/config"
	"github.com/trendscope/viralscan/internal/model"
	"github.com/trendscope/viralscan/internal/registry"
	"github.com/trendscope/viralscan/internal/store"
	"github.com/trendscope/viralscan/pkg/brightdata"
)

// Exporter writes a finished result to its output destinations and
// returns the paths written.
type Exporter func(result *model.RunResult, collectedAt time.Time) ([]string, error)

// Pipeline wires collection, filtering, and persistence together for
// one configured target market.
type Pipeline struct {
	cfg      *config.Config
	client   brightdata.Client
	store    store.Store
	profile  *registry.Profile
	filter   *FilterEngine
	exporter Exporter
	clock    func() time.Time
}

type PipelineOption func(*Pipeline)

// WithExporter attaches an output writer invoked during the exporting
// phase. Without one the run result is only persisted to the store.
func WithExporter(e Exporter) PipelineOption {
	return func(p *Pipeline) { p.exporter = e }
}

// WithClock overrides the reference-time source. Tests use it to pin
// the collection timestamp.
func WithClock(clock func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.clock = clock }
}

// New validates the filter policy and builds a ready pipeline.
func New(cfg *config.Config, client brightdata.Client, st store.Store, profile *registry.Profile, opts ...PipelineOption) (*Pipeline, error) {
	engine, err := NewFilterEngine(cfg.Filter, profile)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:     cfg,
		client:  client,
		store:   st,
		profile: profile,
		filter:  engine,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes a full collection run and persists its progress and
// outcome. The returned run carries the final result; a processing
// failure is recorded on the run and also returned as an error.
func (p *Pipeline) Run(ctx context.Context, method model.Method) (*model.Run, error) {
	run, err := p.store.CreateRun(ctx, method)
	if err != nil {
		return nil, err
	}
	log := zap.S().With("run_id", run.ID, "method", method)
	started := p.clock()

	result, runErr := p.execute(ctx, run.ID, method, started, log)
	if runErr != nil {
		log.Errorw("run failed", "error", runErr)
		result = &model.RunResult{Error: runErr.Error()}
	}
	result.Stats.ElapsedMS = p.clock().Sub(started).Milliseconds()

	if err := p.store.SetRunResult(ctx, run.ID, result); err != nil {
		return nil, err
	}
	run.Result = result
	run.Status = model.RunStatusComplete
	if result.Error != "" {
		run.Status = model.RunStatusFailed
	}
	return run, runErr
}

func (p *Pipeline) execute(ctx context.Context, runID string, method model.Method, collectedAt time.Time, log *zap.SugaredLogger) (*model.RunResult, error) {
	if err := p.store.UpdateRunStatus(ctx, runID, model.RunStatusCollecting); err != nil {
		return nil, err
	}
	batches, err := p.collect(ctx, method, log)
	if err != nil {
		return nil, err
	}

	if err := p.store.UpdateRunStatus(ctx, runID, model.RunStatusFiltering); err != nil {
		return nil, err
	}
	merged := MergeBatches(batches, method.Strategies())
	deduped := Dedupe(merged)

	signals := NewSignalComputer(p.profile)
	for i := range deduped {
		deduped[i] = signals.Compute(deduped[i], collectedAt)
	}

	passed, rejections := p.filter.Apply(deduped)
	Rank(passed, p.cfg.Filter.RankBy)

	stats := BuildStats(batches, len(deduped), len(passed), rejections, 0)
	result := &model.RunResult{Stats: stats, Videos: passed}
	log.Infow("filtering complete",
		"raw", stats.RawCount, "after_dedup", stats.AfterDedup, "viral", stats.AfterFilter)

	if p.exporter != nil {
		if err := p.store.UpdateRunStatus(ctx, runID, model.RunStatusExporting); err != nil {
			return nil, err
		}
		paths, err := p.exporter(result, collectedAt)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: export result")
		}
		log.Infow("export complete", "files", paths)
	}
	return result, nil
}

// collect fetches and normalizes every strategy of the method. Hybrid
// runs both strategies concurrently; batch order is restored by
// MergeBatches afterwards.
func (p *Pipeline) collect(ctx context.Context, method model.Method, log *zap.SugaredLogger) ([]Batch, error) {
	strategies := method.Strategies()
	if len(strategies) == 0 {
		return nil, eris.Errorf("pipeline: invalid method %q", method)
	}

	batches := make([]Batch, len(strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, strategy := range strategies {
		g.Go(func() error {
			raw, err := p.fetch(gctx, strategy, log)
			if err != nil {
				return err
			}
			batches[i] = p.normalize(strategy, raw, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

// fetch returns raw records for a strategy, serving from the snapshot
// cache when a fresh entry exists for the same inputs.
func (p *Pipeline) fetch(ctx context.Context, strategy model.Strategy, log *zap.SugaredLogger) ([]model.RawRecord, error) {
	inputs := p.inputsFor(strategy)
	if len(inputs) == 0 {
		log.Infow("no inputs configured, skipping strategy", "strategy", strategy)
		return nil, nil
	}
	fp := fingerprint(inputs, p.cfg.Collect.PostsPerSource)

	if cached, err := p.store.GetCachedSnapshot(ctx, strategy, fp); err != nil {
		log.Warnw("snapshot cache read failed", "error", err)
	} else if cached != nil {
		log.Infow("snapshot cache hit", "strategy", strategy, "records", len(cached))
		return cached, nil
	}

	trigger, err := p.trigger(ctx, strategy, inputs)
	if err != nil {
		return nil, err
	}
	log.Infow("snapshot triggered", "strategy", strategy, "snapshot_id", trigger.SnapshotID)

	results, err := brightdata.WaitForSnapshot(ctx, p.client, trigger.SnapshotID,
		brightdata.WithPollInterval(time.Duration(p.cfg.BrightData.PollIntervalSec)*time.Second),
		brightdata.WithPollTimeout(time.Duration(p.cfg.BrightData.PollMaxWaitSecs)*time.Second))
	if err != nil {
		return nil, err
	}

	raw := make([]model.RawRecord, len(results))
	for i, r := range results {
		raw[i] = model.RawRecord(r)
	}

	ttl := time.Duration(p.cfg.Collect.SnapshotTTLHours) * time.Hour
	if ttl > 0 {
		if err := p.store.SetCachedSnapshot(ctx, strategy, fp, raw, ttl); err != nil {
			log.Warnw("snapshot cache write failed", "error", err)
		}
	}
	return raw, nil
}

func (p *Pipeline) inputsFor(strategy model.Strategy) []string {
	switch strategy {
	case model.StrategyDiscover:
		return p.cfg.Collect.DiscoverURLs
	case model.StrategyHashtag:
		return p.cfg.Collect.Hashtags
	default:
		return nil
	}
}

func (p *Pipeline) trigger(ctx context.Context, strategy model.Strategy, inputs []string) (*brightdata.TriggerResponse, error) {
	country := p.cfg.Filter.TargetRegion
	switch strategy {
	case model.StrategyDiscover:
		return p.client.TriggerDiscoverByURL(ctx, inputs, country, p.cfg.Collect.PostsPerSource)
	case model.StrategyHashtag:
		return p.client.TriggerDiscoverByKeyword(ctx, inputs, country, p.cfg.Collect.PostsPerSource)
	default:
		return nil, eris.Errorf("pipeline: unknown strategy %q", strategy)
	}
}

// normalize converts raw records, counting malformed ones instead of
// failing the batch.
func (p *Pipeline) normalize(strategy model.Strategy, raw []model.RawRecord, log *zap.SugaredLogger) Batch {
	batch := Batch{Strategy: strategy, RawCount: len(raw)}
	norm, err := NormalizerFor(strategy)
	if err != nil {
		batch.Malformed = len(raw)
		return batch
	}
	for _, r := range raw {
		rec, err := norm.Normalize(r)
		if err != nil {
			batch.Malformed++
			log.Debugw("dropped malformed record", "strategy", strategy, "error", err)
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch
}

// fingerprint keys the snapshot cache on the sorted input set and page
// size, so reordered config does not miss the cache.
func fingerprint(inputs []string, postsPerSource int) string {
	sorted := make([]string, len(inputs))
	copy(sorted, inputs)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(strings.Join(sorted, "\n")))
	h.Write([]byte("\n" + strconv.Itoa(postsPerSource)))
	return hex.EncodeToString(h.Sum(nil))
}

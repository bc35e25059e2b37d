package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/truthmarkets/integrity-engine/internal/integrity"
	"github.com/truthmarkets/integrity-engine/internal/metrics"
	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// Bet Stream Processor
//
// The ingestion adapters deliver normalized Bet batches; this processor is
// the seam between them and the integrity engine. For each batch it:
//
//   1. Chunks the batch per epoch and runs the Sybil detector on each chunk
//      concurrently (detectors are pure, so chunks need no ordering)
//   2. Runs the wash-trading detector per wallet over the batch
//   3. Runs the collusion detector across the whole batch
//   4. Emits every finding to the alert sink
//
// Epoch resolution is a separate path: ApplyResolutions folds outcomes into
// the per-wallet aggregates, invalidates cached scores, and re-runs the
// statistical anomaly check against the updated tallies.

// Sink receives detector findings. Nil alerts are ignored by the sink, so
// detector results pass straight through.
type Sink interface {
	Emit(ctx context.Context, alert *models.Alert)
}

// AggregateStore owns the per-wallet win/loss tallies.
type AggregateStore interface {
	ApplyResolvedBets(ctx context.Context, address string, wins, losses int64, volume decimal.Decimal) error
	GetAggregate(ctx context.Context, address string) (models.TraderAggregate, error)
}

// ScoreInvalidator evicts cached scores whose aggregate changed.
type ScoreInvalidator interface {
	Invalidate(ctx context.Context, address string)
}

// Progress is the processor's counters for the API.
type Progress struct {
	BatchesProcessed int64 `json:"batchesProcessed"`
	BetsProcessed    int64 `json:"betsProcessed"`
	AlertsEmitted    int64 `json:"alertsEmitted"`
}

// Processor drives the detectors over incoming bet batches.
type Processor struct {
	detector *integrity.Detector
	sink     Sink
	store    AggregateStore
	scores   ScoreInvalidator
	metrics  *metrics.Registry
	log      zerolog.Logger

	workers int

	batches atomic.Int64
	bets    atomic.Int64
	alerts  atomic.Int64
}

// NewProcessor wires the detector set to its sink. store, scores and
// registry may be nil when persistence, caching or instrumentation is not
// configured.
func NewProcessor(detector *integrity.Detector, sink Sink, store AggregateStore, scores ScoreInvalidator, reg *metrics.Registry, workers int, logger zerolog.Logger) *Processor {
	if workers <= 0 {
		workers = 4
	}
	return &Processor{
		detector: detector,
		sink:     sink,
		store:    store,
		scores:   scores,
		metrics:  reg,
		workers:  workers,
		log:      logger.With().Str("component", "stream").Logger(),
	}
}

// Progress returns the current counters (thread-safe).
func (p *Processor) Progress() Progress {
	return Progress{
		BatchesProcessed: p.batches.Load(),
		BetsProcessed:    p.bets.Load(),
		AlertsEmitted:    p.alerts.Load(),
	}
}

// ProcessBatch runs the batch detectors over a set of bets. Detector
// invocations are idempotent given identical input, so callers may retry a
// batch; deduplication of resulting alerts is their concern.
func (p *Processor) ProcessBatch(ctx context.Context, bets []models.Bet) {
	if len(bets) == 0 {
		return
	}

	p.batches.Add(1)
	p.bets.Add(int64(len(bets)))
	if p.metrics != nil {
		p.metrics.BatchesProcessed.Inc()
		p.metrics.BetsProcessed.Add(float64(len(bets)))
	}

	// 1. Sybil detection per epoch chunk, fanned across the worker pool.
	byEpoch := make(map[int64][]models.Bet)
	for _, b := range bets {
		byEpoch[b.Epoch] = append(byEpoch[b.Epoch], b)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.workers)
	for _, chunk := range byEpoch {
		select {
		case <-ctx.Done():
			return
		default:
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(chunk []models.Bet) {
			defer wg.Done()
			defer func() { <-sem }()
			p.emit(ctx, "sybil", func() *models.Alert {
				return p.detector.DetectSybilCluster(chunk)
			})
		}(chunk)
	}
	wg.Wait()

	// 2. Wash trading per wallet over the full batch.
	byWallet := make(map[string][]models.Bet)
	for _, b := range bets {
		if b.Trader == "" {
			continue
		}
		byWallet[b.Trader] = append(byWallet[b.Trader], b)
	}
	for wallet, history := range byWallet {
		p.emit(ctx, "wash_trading", func() *models.Alert {
			return p.detector.DetectWashTrading(wallet, history)
		})
	}

	// 3. Collusion across the whole batch.
	start := time.Now()
	for _, alert := range p.detector.DetectCollusionBatch(bets) {
		p.deliver(ctx, alert)
	}
	p.observe("collusion", start)

	p.log.Debug().
		Int("bets", len(bets)).
		Int("epochs", len(byEpoch)).
		Int("wallets", len(byWallet)).
		Msg("batch processed")
}

// Resolution is one wallet's outcome for a resolved epoch.
type Resolution struct {
	Address string          `json:"address"`
	Wins    int64           `json:"wins"`
	Losses  int64           `json:"losses"`
	Volume  decimal.Decimal `json:"volume"`
}

// ApplyResolutions folds resolved outcomes into the aggregates, invalidates
// cached scores, and re-checks each affected wallet for statistically
// impossible win rates.
func (p *Processor) ApplyResolutions(ctx context.Context, resolutions []Resolution) error {
	for _, r := range resolutions {
		if r.Address == "" {
			continue
		}
		if p.store != nil {
			if err := p.store.ApplyResolvedBets(ctx, r.Address, r.Wins, r.Losses, r.Volume); err != nil {
				return err
			}
		}
		if p.scores != nil {
			p.scores.Invalidate(ctx, r.Address)
		}

		if p.store != nil {
			agg, err := p.store.GetAggregate(ctx, r.Address)
			if err != nil {
				p.log.Warn().Err(err).Str("address", r.Address).Msg("anomaly recheck skipped")
				continue
			}
			p.emit(ctx, "anomaly", func() *models.Alert {
				return p.detector.DetectStatisticalAnomaly(agg.Address, agg.Wins, agg.TotalBets)
			})
		}
	}
	return nil
}

// emit times one detector invocation and delivers its finding, if any.
func (p *Processor) emit(ctx context.Context, name string, run func() *models.Alert) {
	start := time.Now()
	alert := run()
	p.observe(name, start)
	p.deliver(ctx, alert)
}

func (p *Processor) observe(detector string, start time.Time) {
	if p.metrics != nil {
		p.metrics.DetectorDuration.WithLabelValues(detector).Observe(time.Since(start).Seconds())
	}
}

func (p *Processor) deliver(ctx context.Context, alert *models.Alert) {
	if alert == nil {
		return
	}
	p.alerts.Add(1)
	if p.metrics != nil {
		p.metrics.ObserveAlert(alert)
	}
	if p.sink != nil {
		p.sink.Emit(ctx, alert)
	}
}

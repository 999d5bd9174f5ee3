// Package contextbuilder implements the ContextBuilder (C6): it assembles the
// Context bundle the Structurer (C3) consumes from three sources — the
// broker's live OHLC bars (indicator cache-aside through Redis), recent
// structure signals from persistence, and the performance-stats feed —
// plus the optional Q-trend directional filter.
package contextbuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/yusuke746/trading-system/internal/indicators"
	"github.com/yusuke746/trading-system/internal/metrics"
	"github.com/yusuke746/trading-system/internal/model"
	"github.com/yusuke746/trading-system/internal/structurer"
)

// Bar is one OHLC bar fetched from the broker, oldest-first.
type Bar = indicators.Bar

// IndicatorSource fetches the OHLC bar history for a symbol/timeframe pair,
// oldest-first, used to compute the live indicator set.
type IndicatorSource interface {
	RecentBars(ctx context.Context, symbol string, timeframe string, count int) ([]Bar, error)
}

// StructureStore looks up the most recent structure signal of a given
// event kind for a symbol, within a lookback window. A nil return with a
// nil error means none was found within the window.
type StructureStore interface {
	RecentStructureSignal(ctx context.Context, symbol string, event model.Event, lookback time.Duration) (*model.Signal, error)
}

// StatsSource supplies the win-rate/consecutive-loss/ATR-percentile
// performance feed, aggregated from trade history.
type StatsSource interface {
	WinRate(ctx context.Context, symbol string) (float64, error)
	ConsecutiveLosses(ctx context.Context, symbol string) (int, error)
	ATRPercentile(ctx context.Context, symbol string) (*float64, error)
}

// QTrendSource supplies the optional higher-timeframe directional filter;
// a nil *model.QTrendContext with a nil error means the filter is not
// configured or not currently available.
type QTrendSource interface {
	QTrend(ctx context.Context, symbol string) (*model.QTrendContext, error)
}

// Config holds the per-structure-kind lookback windows and the
// per-timeframe indicator cache TTLs.
type Config struct {
	Timeframes []string // e.g. "5m", "15m", "1h"
	BarsNeeded int      // bars fetched per timeframe, sized for the slowest indicator (60 covers ADX/ATR/SMA20/Bollinger)

	CacheTTL map[string]time.Duration // per-timeframe Redis TTL

	MacroZoneLookback   time.Duration
	ZoneRetraceLookback time.Duration
	FVGTouchLookback    time.Duration
	SweepLookback       time.Duration

	DefaultWinRate       float64
	DefaultATRPercentile float64
}

// DefaultConfig matches the live system's tuned windows: cache TTLs scaled
// to each timeframe's own bar period (roughly bar-period/75), and
// structure lookbacks of 24h for macro zones and 30 minutes for the
// zone-retrace, FVG-touch and liquidity-sweep setups, which expire fast.
func DefaultConfig() Config {
	return Config{
		Timeframes: []string{"5m", "15m", "1h"},
		BarsNeeded: 60,
		CacheTTL: map[string]time.Duration{
			"5m":  4 * time.Second,
			"15m": 12 * time.Second,
			"1h":  45 * time.Second,
		},
		MacroZoneLookback:   24 * time.Hour,
		ZoneRetraceLookback: 30 * time.Minute,
		FVGTouchLookback:    30 * time.Minute,
		SweepLookback:       30 * time.Minute,

		DefaultWinRate:       0.55,
		DefaultATRPercentile: 0.50,
	}
}

// Builder is C6. It is safe for concurrent use.
type Builder struct {
	bars       IndicatorSource
	structures StructureStore
	stats      StatsSource
	qtrend     QTrendSource // nil means the Q-trend filter is not wired

	redis *metrics.RedisMetrics // nil disables the indicator cache; every call falls through to bars
	sf    singleflight.Group

	cfg Config
	log zerolog.Logger
}

func New(bars IndicatorSource, structures StructureStore, stats StatsSource, qtrend QTrendSource, redisClient *redis.Client, cfg Config, log zerolog.Logger) *Builder {
	var redisMetrics *metrics.RedisMetrics
	if redisClient != nil {
		redisMetrics = metrics.NewRedisMetrics(redisClient)
	}
	return &Builder{
		bars:       bars,
		structures: structures,
		stats:      stats,
		qtrend:     qtrend,
		redis:      redisMetrics,
		cfg:        cfg,
		log:        log.With().Str("component", "context_builder").Logger(),
	}
}

// Build assembles the Context bundle for one pipeline run over
// entrySignals. entrySignals must be non-empty; the first signal's
// symbol drives every downstream lookup.
func (b *Builder) Build(ctx context.Context, entrySignals []model.Signal) (model.ContextBundle, error) {
	if len(entrySignals) == 0 {
		return model.ContextBundle{}, fmt.Errorf("context: no entry signals supplied")
	}
	symbol := entrySignals[0].Symbol

	liveIndicators := make(map[string]model.LiveIndicatorSet, len(b.cfg.Timeframes))
	for _, tf := range b.cfg.Timeframes {
		set, err := b.indicatorSet(ctx, symbol, tf)
		if err != nil {
			b.log.Warn().Err(err).Str("symbol", symbol).Str("timeframe", tf).Msg("indicator fetch failed, timeframe omitted")
			continue
		}
		liveIndicators[tf] = set
	}

	recent := b.recentStructure(ctx, symbol)

	var qtrend *model.QTrendContext
	if b.qtrend != nil {
		q, err := b.qtrend.QTrend(ctx, symbol)
		if err != nil {
			b.log.Warn().Err(err).Str("symbol", symbol).Msg("q-trend fetch failed, omitted")
		} else {
			qtrend = q
		}
	}

	return model.ContextBundle{
		EntrySignals:    entrySignals,
		LiveIndicators:  liveIndicators,
		RecentStructure: recent,
		QTrendContext:   qtrend,
		Stats:           b.collectStats(ctx, symbol),
		BuiltAt:         time.Now().UTC(),
	}, nil
}

func (b *Builder) collectStats(ctx context.Context, symbol string) model.Stats {
	winRate := b.cfg.DefaultWinRate
	if b.statsSource() != nil {
		if wr, err := b.stats.WinRate(ctx, symbol); err == nil {
			winRate = wr
		} else {
			b.log.Warn().Err(err).Str("symbol", symbol).Msg("win rate lookup failed, using default")
		}
	}

	consecLosses := 0
	if b.statsSource() != nil {
		if cl, err := b.stats.ConsecutiveLosses(ctx, symbol); err == nil {
			consecLosses = cl
		} else {
			b.log.Warn().Err(err).Str("symbol", symbol).Msg("consecutive-loss lookup failed, using default")
		}
	}

	var atrPercentile *float64
	if b.statsSource() != nil {
		if p, err := b.stats.ATRPercentile(ctx, symbol); err == nil {
			atrPercentile = p
		} else {
			b.log.Warn().Err(err).Str("symbol", symbol).Msg("ATR percentile lookup failed, omitted")
		}
	}
	if atrPercentile == nil {
		def := b.cfg.DefaultATRPercentile
		atrPercentile = &def
	}

	return model.Stats{
		WinRate:       winRate,
		ConsecLosses:  consecLosses,
		Session:       sessionNow(),
		ATRPercentile: atrPercentile,
	}
}

func (b *Builder) statsSource() StatsSource {
	return b.stats
}

func (b *Builder) recentStructure(ctx context.Context, symbol string) model.RecentStructure {
	lookup := func(event model.Event, lookback time.Duration) *model.Signal {
		sig, err := b.structures.RecentStructureSignal(ctx, symbol, event, lookback)
		if err != nil {
			b.log.Warn().Err(err).Str("symbol", symbol).Str("event", string(event)).Msg("recent structure lookup failed, omitted")
			return nil
		}
		return sig
	}

	return model.RecentStructure{
		MacroZone:      lookup(model.EventNewZoneConfirmed, b.cfg.MacroZoneLookback),
		ZoneRetrace:    lookup(model.EventZoneRetraceTouch, b.cfg.ZoneRetraceLookback),
		FVGTouch:       lookup(model.EventFVGTouch, b.cfg.FVGTouchLookback),
		LiquiditySweep: lookup(model.EventLiquiditySweep, b.cfg.SweepLookback),
	}
}

// indicatorSet fetches one timeframe's live indicator set, using Redis as
// a cache-aside layer (JSON, short TTL) and singleflight to collapse
// concurrent cache misses for the same symbol/timeframe into a single
// broker call. A nil Redis client or any cache error falls straight
// through to a fresh broker fetch; cache writes never block the caller.
func (b *Builder) indicatorSet(ctx context.Context, symbol, timeframe string) (model.LiveIndicatorSet, error) {
	cacheKey := fmt.Sprintf("context:indicators:%s:%s", symbol, timeframe)

	if b.redis != nil {
		if cached, err := b.redis.Get(ctx, cacheKey); err == nil {
			var set model.LiveIndicatorSet
			if jsonErr := json.Unmarshal([]byte(cached), &set); jsonErr == nil {
				return set, nil
			}
			b.log.Warn().Str("cache_key", cacheKey).Msg("failed to unmarshal cached indicator set, fetching fresh")
		} else if err != redis.Nil {
			b.log.Warn().Err(err).Str("cache_key", cacheKey).Msg("redis error during indicator cache lookup")
		}
	}

	result, err, _ := b.sf.Do(cacheKey, func() (interface{}, error) {
		bars, err := b.bars.RecentBars(ctx, symbol, timeframe, b.cfg.BarsNeeded)
		if err != nil {
			return model.LiveIndicatorSet{}, fmt.Errorf("fetch bars: %w", err)
		}
		return indicators.Compute(bars)
	})
	if err != nil {
		return model.LiveIndicatorSet{}, err
	}
	set := result.(model.LiveIndicatorSet)

	if b.redis != nil {
		ttl := b.cfg.CacheTTL[timeframe]
		if ttl == 0 {
			ttl = DefaultConfig().CacheTTL["5m"]
		}
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			data, err := json.Marshal(set)
			if err != nil {
				b.log.Warn().Err(err).Msg("failed to marshal indicator set for cache")
				return
			}
			if err := b.redis.Set(cacheCtx, cacheKey, data, ttl); err != nil {
				b.log.Warn().Err(err).Str("cache_key", cacheKey).Msg("failed to cache indicator set")
			}
		}()
	}

	return set, nil
}

func sessionNow() model.Session {
	return structurer.SessionForHour(time.Now().UTC().Hour())
}

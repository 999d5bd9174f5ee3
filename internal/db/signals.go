package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yusuke746/trading-system/internal/model"
)

// PersistSignal inserts one inbound signal row (the `signals` table) and
// returns its generated ID for use as a foreign key from ai_decisions.
func (db *DB) PersistSignal(ctx context.Context, sig model.Signal) (string, error) {
	id := uuid.New()
	query := `
		INSERT INTO signals (
			id, received_at, symbol, source, signal_type, event, direction,
			price, tf, raw, processed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	var tf *int
	if sig.Timeframe != nil {
		tf = sig.Timeframe
	}
	_, err := db.pool.Exec(ctx, query,
		id,
		sig.ReceivedAt,
		sig.Symbol,
		sig.Source,
		sig.Kind,
		sig.Event,
		sig.Direction,
		sig.Price,
		tf,
		rawSignalJSON(sig),
		false,
	)
	if err != nil {
		return "", fmt.Errorf("persist signal: %w", err)
	}
	return id.String(), nil
}

// rawSignalJSON captures the signal's non-normalized fields (confidence,
// pattern similarity, confirmation timing) in the `raw` jsonb column so the
// originating webhook payload's extra detail survives for later replay,
// even though only the normalized columns feed decision-making.
func rawSignalJSON(sig model.Signal) map[string]interface{} {
	raw := map[string]interface{}{
		"confirmed": sig.Confirmed,
		"strength":  sig.Strength,
	}
	if sig.TVConfidence != nil {
		raw["tv_confidence"] = *sig.TVConfidence
	}
	if sig.PatternSimilarity != nil {
		raw["pattern_similarity"] = *sig.PatternSimilarity
	}
	return raw
}

// MarkSignalsProcessed flips the `processed` flag once a batch has been
// fully dispatched, so a crash-restart replay of unprocessed signals (if
// ever added) would not double-count a completed batch.
func (db *DB) MarkSignalsProcessed(ctx context.Context, signalIDs []string) error {
	if len(signalIDs) == 0 {
		return nil
	}
	_, err := db.pool.Exec(ctx, `UPDATE signals SET processed = true WHERE id = ANY($1)`, signalIDs)
	if err != nil {
		return fmt.Errorf("mark signals processed: %w", err)
	}
	return nil
}

// RecentStructureSignal looks up the most recent structure-kind signal of
// the given event within the lookback window, scanning directly into a
// model.Signal the same shape the ContextBuilder (C6) and BatchDispatcher
// (C7) already consume. Returns (nil, nil) when none is found.
func (db *DB) RecentStructureSignal(ctx context.Context, symbol string, event model.Event, lookback time.Duration) (*model.Signal, error) {
	query := `
		SELECT symbol, price, tf, direction, signal_type, event, source,
		       received_at
		FROM signals
		WHERE symbol = $1 AND event = $2 AND signal_type = $3
		  AND received_at >= $4
		ORDER BY received_at DESC
		LIMIT 1
	`
	row := db.pool.QueryRow(ctx, query, symbol, event, model.KindStructure, time.Now().Add(-lookback))

	var sig model.Signal
	var tf *int
	if err := row.Scan(&sig.Symbol, &sig.Price, &tf, &sig.Direction, &sig.Kind, &sig.Event, &sig.Source, &sig.ReceivedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("recent structure signal: %w", err)
	}
	sig.Timeframe = tf
	return &sig, nil
}

// RecentSyntheticTrigger reports whether a synthesized reversal trigger for
// the given direction was already recorded within the cooldown window —
// the BatchDispatcher's (C7) reversal-detector debounce.
func (db *DB) RecentSyntheticTrigger(ctx context.Context, direction model.Direction, within time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM signals
			WHERE source = 'synthetic_reversal' AND direction = $1
			  AND received_at >= $2
		)
	`
	var exists bool
	if err := db.pool.QueryRow(ctx, query, direction, time.Now().Add(-within)).Scan(&exists); err != nil {
		return false, fmt.Errorf("recent synthetic trigger: %w", err)
	}
	return exists, nil
}

// RecordSyntheticTrigger persists the reversal-detector's synthesized entry
// trigger, tagged with source="synthetic_reversal" so
// RecentSyntheticTrigger's cooldown check can find it again.
func (db *DB) RecordSyntheticTrigger(ctx context.Context, sig model.Signal) error {
	sig.Source = "synthetic_reversal"
	_, err := db.PersistSignal(ctx, sig)
	return err
}

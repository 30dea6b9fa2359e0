package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"grainledger/internal/core/actor"
	"grainledger/internal/core/apperror"
	"grainledger/internal/core/id"
	"grainledger/internal/domain/repair"
)

// CompressionAlgo specifies the compression algorithm used for a trail
// payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// TrailEntry is one persisted repair-trail row.
type TrailEntry struct {
	ID                id.ID           `db:"id"`
	Action            repair.Action   `db:"action"`
	TargetID          id.ID           `db:"target_id"`
	ActorID           *id.ID          `db:"actor_id"`
	Details           json.RawMessage `db:"details"`
	DetailsCompressed []byte          `db:"details_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// RepairTrail persists what live repair runs did. Large payloads are
// compressed with zstd before insert.
type RepairTrail struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ repair.Trail = (*RepairTrail)(nil)

// NewRepairTrail creates the trail writer.
func NewRepairTrail(txManager *TxManager) (*RepairTrail, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &RepairTrail{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Log records one repair action.
func (t *RepairTrail) Log(ctx context.Context, action repair.Action, targetID id.ID, details any) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal trail details: %w", err)
	}

	entry := TrailEntry{
		ID:              id.New(),
		Action:          action,
		TargetID:        targetID,
		Details:         payload,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}

	if actorID := actor.IDFromContext(ctx); !id.IsNil(actorID) {
		entry.ActorID = &actorID
	}

	if len(entry.Details) > t.compressThreshold {
		entry.DetailsCompressed = t.encoder.EncodeAll(entry.Details, nil)
		entry.Details = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO repair_trail (
			id, action, target_id, actor_id,
			details, details_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	querier := t.txManager.GetQuerier(ctx)
	_, err = querier.Exec(ctx, sql,
		entry.ID, entry.Action, entry.TargetID, entry.ActorID,
		entry.Details, entry.DetailsCompressed, entry.CompressionAlgo,
		entry.CreatedAt,
	)
	if err != nil {
		return apperror.NewDatabase(fmt.Errorf("insert trail entry: %w", err))
	}
	return nil
}

// Recent returns the newest trail entries, most recent first.
func (t *RepairTrail) Recent(ctx context.Context, limit int) ([]TrailEntry, error) {
	sql := `
		SELECT id, action, target_id, actor_id,
		       details, details_compressed, compression_algo, created_at
		FROM repair_trail
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	var entries []TrailEntry
	if err := pgxscan.Select(ctx, t.txManager.GetQuerier(ctx), &entries, sql, limit); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("list trail entries: %w", err))
	}
	return entries, nil
}

// Decompress restores a compressed trail payload.
func (t *RepairTrail) Decompress(entry TrailEntry) (json.RawMessage, error) {
	switch entry.CompressionAlgo {
	case CompressionNone:
		return entry.Details, nil
	case CompressionZstd:
		raw, err := t.decoder.DecodeAll(entry.DetailsCompressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress trail details: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown compression algo %q", entry.CompressionAlgo)
	}
}

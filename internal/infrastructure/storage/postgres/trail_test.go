package postgres

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairTrailDecompress(t *testing.T) {
	trail, err := NewRepairTrail(nil)
	require.NoError(t, err)

	t.Run("plain payload passes through", func(t *testing.T) {
		entry := TrailEntry{
			Details:         json.RawMessage(`{"quantity":"30.0000"}`),
			CompressionAlgo: CompressionNone,
		}
		raw, err := trail.Decompress(entry)
		require.NoError(t, err)
		assert.Equal(t, entry.Details, raw)
	})

	t.Run("zstd payload round-trips", func(t *testing.T) {
		payload, err := json.Marshal(map[string]string{
			"note": string(bytes.Repeat([]byte("x"), 20*1024)),
		})
		require.NoError(t, err)

		entry := TrailEntry{
			DetailsCompressed: trail.encoder.EncodeAll(payload, nil),
			CompressionAlgo:   CompressionZstd,
		}
		raw, err := trail.Decompress(entry)
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage(payload), raw)
	})

	t.Run("unknown algo rejected", func(t *testing.T) {
		_, err := trail.Decompress(TrailEntry{CompressionAlgo: "lz4"})
		assert.Error(t, err)
	})
}

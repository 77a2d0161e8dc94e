package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/billstate/billstate/pkg/billing"
)

func TestNormalizeSubscription(t *testing.T) {
	t.Parallel()

	t.Run("full response", func(t *testing.T) {
		t.Parallel()
		// numbers as float64, the shape encoding/json hands the SDK
		raw := map[string]interface{}{
			"id":              "sub_NXxGq8LZK4dsp8",
			"plan_id":         "plan_NXxGq8LZK4dsp8",
			"status":          "active",
			"remaining_count": float64(11),
			"paid_count":      float64(1),
			"total_count":     float64(12),
			"start_at":        float64(1700000000),
			"current_start":   float64(1700000000),
			"current_end":     float64(1702592000),
			"charge_at":       float64(1702592000),
			"short_url":       "https://rzp.io/i/abc",
			"notes": map[string]interface{}{
				"email":   "user@example.com",
				"ignored": float64(7), // non-string note values are skipped
			},
		}

		ext, err := normalizeSubscription(raw)
		require.NoError(t, err)
		assert.Equal(t, "sub_NXxGq8LZK4dsp8", ext.ID)
		assert.Equal(t, core.StatusActive, ext.Status)
		assert.Equal(t, 11, ext.RemainingCount)
		assert.Equal(t, 1, ext.PaidCount)
		assert.Equal(t, 12, ext.TotalCount)
		require.NotNil(t, ext.StartDate)
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), *ext.StartDate)
		assert.Nil(t, ext.EndDate)
		assert.Nil(t, ext.EndedAt)
		assert.Equal(t, "https://rzp.io/i/abc", ext.ShortURL)
		assert.Equal(t, map[string]string{"email": "user@example.com"}, ext.Notes)
	})

	t.Run("cancelled response carries ended_at", func(t *testing.T) {
		t.Parallel()
		ext, err := normalizeSubscription(map[string]interface{}{
			"id":       "sub_NXxGq8LZK4dsp8",
			"status":   "cancelled",
			"ended_at": float64(1700000100),
		})
		require.NoError(t, err)
		assert.Equal(t, core.StatusCancelled, ext.Status)
		require.NotNil(t, ext.EndedAt)
		assert.Equal(t, time.Unix(1700000100, 0).UTC(), *ext.EndedAt)
	})

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()
		_, err := normalizeSubscription(map[string]interface{}{"status": "active"})
		assert.ErrorContains(t, err, "missing subscription id")
	})

	t.Run("unknown status", func(t *testing.T) {
		t.Parallel()
		_, err := normalizeSubscription(map[string]interface{}{
			"id":     "sub_1",
			"status": "frozen",
		})
		assert.ErrorContains(t, err, "unknown status")
	})
}

func TestIntField(t *testing.T) {
	t.Parallel()

	raw := map[string]interface{}{
		"float": float64(12),
		"int":   7,
		"int64": int64(3),
		"str":   "12",
	}
	assert.Equal(t, 12, intField(raw, "float"))
	assert.Equal(t, 7, intField(raw, "int"))
	assert.Equal(t, 3, intField(raw, "int64"))
	assert.Equal(t, 0, intField(raw, "str"))
	assert.Equal(t, 0, intField(raw, "missing"))
}

func TestTimeField(t *testing.T) {
	t.Parallel()

	raw := map[string]interface{}{
		"set":  float64(1700000000),
		"zero": float64(0),
	}
	require.NotNil(t, timeField(raw, "set"))
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *timeField(raw, "set"))
	assert.Nil(t, timeField(raw, "zero"))
	assert.Nil(t, timeField(raw, "missing"))
}

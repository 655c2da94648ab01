package region

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forecourt-service/internal/domain/forecourt"
)

func box(x1, y1, x2, y2 float64) forecourt.Box {
	return forecourt.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func TestAssign(t *testing.T) {
	r := NewRegistry()
	_, err := r.Upsert("Pump1", box(0, 0, 200, 200))
	require.NoError(t, err)

	assert.Equal(t, "Pump1", r.Assign(box(50, 50, 150, 150)))
	assert.Equal(t, Unknown, r.Assign(box(250, 250, 300, 300)))
}

func TestAssignBoundaryTouchIsNotOverlap(t *testing.T) {
	r := NewRegistry()
	_, err := r.Upsert("Pump1", box(0, 0, 200, 200))
	require.NoError(t, err)

	assert.Equal(t, Unknown, r.Assign(box(200, 0, 300, 100)), "shares the right edge")
	assert.Equal(t, Unknown, r.Assign(box(0, 200, 100, 300)), "shares the bottom edge")
	assert.Equal(t, "Pump1", r.Assign(box(199, 199, 300, 300)))
}

func TestAssignFirstInsertedWins(t *testing.T) {
	r := NewRegistry()
	_, err := r.Upsert("Lane", box(0, 0, 300, 300))
	require.NoError(t, err)
	_, err = r.Upsert("Pump1", box(100, 100, 200, 200))
	require.NoError(t, err)

	assert.Equal(t, "Lane", r.Assign(box(120, 120, 180, 180)))

	// Overwriting keeps the original position.
	_, err = r.Upsert("Lane", box(0, 0, 150, 150))
	require.NoError(t, err)
	assert.Equal(t, "Lane", r.Assign(box(120, 120, 180, 180)))
	assert.Equal(t, "Pump1", r.Assign(box(160, 160, 190, 190)))
	assert.Equal(t, []string{"Lane", "Pump1"}, r.Labels())
}

func TestUpsertNormalizesCorners(t *testing.T) {
	r := NewRegistry()
	got, err := r.Upsert("  Pump 2 ", box(200, 150, 10, 20))
	require.NoError(t, err)

	assert.Equal(t, "Pump 2", got.Label)
	assert.Equal(t, box(10, 20, 200, 150), got.Rect)

	stored, ok := r.Get("Pump 2")
	require.True(t, ok)
	assert.Equal(t, got, stored)
}

func TestUpsertRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		label string
		rect  forecourt.Box
	}{
		{name: "empty label", label: "  ", rect: box(0, 0, 10, 10)},
		{name: "reserved label", label: Unknown, rect: box(0, 0, 10, 10)},
		{name: "zero width", label: "a", rect: box(10, 0, 10, 10)},
		{name: "zero height", label: "a", rect: box(0, 5, 10, 5)},
		{name: "nan coordinate", label: "a", rect: box(math.NaN(), 0, 10, 10)},
		{name: "infinite coordinate", label: "a", rect: box(0, 0, math.Inf(1), 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			_, err := r.Upsert(tt.label, tt.rect)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRegion))
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestAssignUnknownIffNoIntersection(t *testing.T) {
	r := NewRegistry()
	regions := []forecourt.Box{box(0, 0, 100, 100), box(300, 0, 400, 100), box(0, 300, 100, 400)}
	for i, rect := range regions {
		_, err := r.Upsert(string(rune('A'+i)), rect)
		require.NoError(t, err)
	}

	for x := -50.0; x <= 450; x += 25 {
		for y := -50.0; y <= 450; y += 25 {
			b := box(x, y, x+40, y+40)
			intersects := false
			for _, rect := range regions {
				if b.Overlaps(rect) {
					intersects = true
				}
			}
			assert.Equal(t, !intersects, r.Assign(b) == Unknown, "box %v", b)
		}
	}
}

package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointsNeeded(t *testing.T) {
	assert.Equal(t, 2, PointsNeeded("schnell", "1K", 1))
	assert.Equal(t, 8, PointsNeeded("schnell", "1K", 4))
	assert.Equal(t, 10, PointsNeeded("pro", "2K", 1))
}

func TestPointsNeededUnknownModelUsesDefault(t *testing.T) {
	assert.Equal(t, 6, PointsNeeded("mystery", "1K", 1))
	assert.Equal(t, 6, PointsNeeded("dev", "8K", 1))
}

func TestPointsNeededClampsNumImages(t *testing.T) {
	assert.Equal(t, PointsNeeded("dev", "1K", 1), PointsNeeded("dev", "1K", 0))
	assert.Equal(t, PointsNeeded("dev", "1K", 1), PointsNeeded("dev", "1K", -3))
}

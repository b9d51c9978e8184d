package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewUpdater(t *testing.T) {
	updater := NewUpdater(nil, 10*time.Second)

	assert.NotNil(t, updater)
	assert.Equal(t, 10*time.Second, updater.interval)
	assert.NotNil(t, updater.stopCh)
}

func TestUpdaterStop(t *testing.T) {
	updater := NewUpdater(nil, time.Second)

	assert.NotPanics(t, updater.Stop)

	_, ok := <-updater.stopCh
	assert.False(t, ok, "stopCh should be closed")
}

func TestUpdatePoolSkipsNilPool(t *testing.T) {
	updater := NewUpdater(nil, time.Second)

	assert.NotPanics(t, updater.updatePool)
}

package sessionwatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHintSetAndClear(t *testing.T) {
	h := &Hint{}
	assert.False(t, h.Asleep())

	h.setAsleep(true, time.Now())
	assert.True(t, h.Asleep())

	h.setAsleep(false, time.Now().Add(3*time.Second))
	assert.False(t, h.Asleep())
}

func TestHintDebouncesQuickResume(t *testing.T) {
	h := &Hint{}
	base := time.Now()

	h.setAsleep(true, base)
	h.setAsleep(false, base.Add(500*time.Millisecond))

	assert.True(t, h.Asleep(), "resume within debounce window should be ignored")
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowHonoursBurstPerKey(t *testing.T) {
	krl := New(0.001, 2)

	assert.True(t, krl.Allow("teleman"))
	assert.True(t, krl.Allow("teleman"))
	assert.False(t, krl.Allow("teleman"))

	// Other keys have their own bucket.
	assert.True(t, krl.Allow("fandom"))
}

func TestConfigureOverridesDefault(t *testing.T) {
	krl := New(0.001, 1)
	krl.Configure("polskieradio", 0, 1)

	for range 10 {
		assert.True(t, krl.Allow("polskieradio"))
	}
}

func TestWaitRespectsContext(t *testing.T) {
	krl := New(0.001, 1)
	assert.True(t, krl.Allow("teleman"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, krl.Wait(ctx, "teleman"))
}

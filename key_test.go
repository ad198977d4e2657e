package rlcore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	a := DeriveKey("ratelimit", "user-1", "tenant-a", "60")
	b := DeriveKey("ratelimit", "user-1", "tenant-a", "60")
	assert.Equal(t, a, b)
}

func TestDeriveKeyDistinctParts(t *testing.T) {
	a := DeriveKey("ratelimit", "user-1", "tenant-a", "60")
	b := DeriveKey("ratelimit", "user-2", "tenant-a", "60")
	assert.NotEqual(t, a, b)
}

func TestSanitizeComponentBlocksKeyShapeInjection(t *testing.T) {
	withColon := DeriveKey("ratelimit", sanitizeComponent("user:admin"), "tenant", "60")
	assert.NotContains(t, strings.TrimPrefix(withColon, "ratelimit:"), ":admin")
	assert.Equal(t, "ratelimit:user_admin:tenant:60", withColon)
}

func TestDeriveKeyBoundsLength(t *testing.T) {
	huge := strings.Repeat("x", 1000)
	key := DeriveKey("ratelimit", huge)
	assert.LessOrEqual(t, len(key), maxKeyBytes+16)
}

func TestWindowStart(t *testing.T) {
	assert.Equal(t, int64(60), windowStart(119, 60))
	assert.Equal(t, int64(120), windowStart(120, 60))
	assert.Equal(t, int64(0), windowStart(0, 60))
}

func TestSlidingWindowKeysPreviousIsOneWindowBack(t *testing.T) {
	cur, prev := slidingWindowKeys("ratelimit", "id", "tenant", 120, 60)
	assert.Contains(t, cur, "120")
	assert.Contains(t, prev, "60")
	assert.NotEqual(t, cur, prev)
}

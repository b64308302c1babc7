package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	// 1M input + 1M output tokens of gpt-4o is exactly the per-MTok prices.
	got := Compute("gpt-4o", 1_000_000, 1_000_000)
	assert.InDelta(t, 12.50, got, 1e-9)

	got = Compute("gpt-4o-mini", 200_000, 100_000)
	assert.InDelta(t, 0.15*0.2+0.60*0.1, got, 1e-9)
}

func TestCompute_UnknownModelIsFree(t *testing.T) {
	assert.Zero(t, Compute("local-llama", 1_000_000, 1_000_000))
	assert.Zero(t, Compute("", 10, 10))
}

func TestLookup(t *testing.T) {
	p, ok := Lookup("claude-3-5-sonnet")
	assert.True(t, ok)
	assert.Equal(t, 3.00, p.InputPerMTok)

	_, ok = Lookup("nope")
	assert.False(t, ok)
}

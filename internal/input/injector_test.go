package input

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostclick/internal/platform"
)

func TestClickEnforcesGlobalGap(t *testing.T) {
	fake := platform.NewFake()
	inj := NewInjector(fake, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for n := 0; n < 3; n++ {
		require.NoError(t, inj.Click(ctx, image.Point{X: n, Y: n}, platform.ClickSingle))
	}
	elapsed := time.Since(start)

	// First click is immediate, the next two each wait out the gap.
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Len(t, fake.Clicks(), 3)
}

func TestClickCancelledDuringGap(t *testing.T) {
	fake := platform.NewFake()
	inj := NewInjector(fake, time.Minute)
	ctx := context.Background()

	require.NoError(t, inj.Click(ctx, image.Point{}, platform.ClickSingle))

	cancelled, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := inj.Click(cancelled, image.Point{X: 1}, platform.ClickSingle)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, fake.Clicks(), 1)
}

func TestClickKindPassedThrough(t *testing.T) {
	fake := platform.NewFake()
	inj := NewInjector(fake, time.Millisecond)

	require.NoError(t, inj.Click(context.Background(), image.Point{X: 120, Y: 80}, platform.ClickRight))
	clicks := fake.Clicks()
	require.Len(t, clicks, 1)
	assert.Equal(t, platform.ClickRight, clicks[0].Kind)
	assert.Equal(t, image.Point{X: 120, Y: 80}, clicks[0].Point)
}

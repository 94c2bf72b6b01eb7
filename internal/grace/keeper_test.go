package grace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeeper_AcquireReleaseIdempotent(t *testing.T) {
	k := NewKeeper(nil)

	release := k.Acquire("media.fetch")
	assert.Equal(t, 1, k.Active())

	release()
	release() // double release must not underflow
	assert.Equal(t, 0, k.Active())

	assert.True(t, k.Drain(time.Second))
}

func TestKeeper_GoReleasesOnPanic(t *testing.T) {
	k := NewKeeper(nil)

	k.Go("panicky", func() {
		panic("boom")
	})

	assert.True(t, k.Drain(time.Second))
	assert.Equal(t, 0, k.Active())
}

func TestKeeper_DrainTimesOut(t *testing.T) {
	k := NewKeeper(nil)

	blocker := make(chan struct{})
	k.Go("slow", func() {
		<-blocker
	})

	assert.False(t, k.Drain(20*time.Millisecond))
	close(blocker)
	assert.True(t, k.Drain(time.Second))
}

func TestKeeper_DrainWaitsForWork(t *testing.T) {
	k := NewKeeper(nil)

	ran := false
	k.Go("quick", func() {
		time.Sleep(10 * time.Millisecond)
		ran = true
	})

	assert.True(t, k.Drain(time.Second))
	assert.True(t, ran)
}

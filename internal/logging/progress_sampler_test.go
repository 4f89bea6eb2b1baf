package logging

import "testing"

func TestProgressSamplerEmitsOnBucketBoundaries(t *testing.T) {
	sampler := NewProgressSampler(10)
	emitted := 0
	for completed := 1; completed <= 100; completed++ {
		if sampler.ShouldLog(completed, 100) {
			emitted++
		}
	}
	if emitted != 10 {
		t.Fatalf("expected 10 emissions for 10%% buckets, got %d", emitted)
	}
}

func TestProgressSamplerAlwaysEmitsCompletion(t *testing.T) {
	sampler := NewProgressSampler(5)
	for completed := 1; completed < 800; completed++ {
		sampler.ShouldLog(completed, 800)
	}
	if !sampler.ShouldLog(800, 800) {
		t.Fatal("final piece should always emit")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	sampler := NewProgressSampler(5)
	if !sampler.ShouldLog(50, 100) {
		t.Fatal("first event should emit")
	}
	sampler.Reset()
	if !sampler.ShouldLog(1, 100) {
		t.Fatal("post-reset event should emit")
	}
}

func TestProgressSamplerNilReceiver(t *testing.T) {
	var sampler *ProgressSampler
	if !sampler.ShouldLog(1, 2) {
		t.Fatal("nil sampler should never suppress")
	}
}

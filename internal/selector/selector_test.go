package selector

import (
	"testing"

	"go-gateway/internal/types"
)

func snap(failing bool, latency, minResponseTime float64) types.HealthSnapshot {
	return types.HealthSnapshot{
		Failing:         failing,
		Latency:         latency,
		MinResponseTime: minResponseTime,
	}
}

func TestSelectDecisionTable(t *testing.T) {
	tests := []struct {
		name     string
		def      types.HealthSnapshot
		fallback types.HealthSnapshot
		want     types.Processor
	}{
		{
			// Deliberate last-resort policy: traffic still goes to
			// default when nothing is healthy.
			name:     "both failing picks default",
			def:      snap(true, 0, 0),
			fallback: snap(true, 0, 0),
			want:     types.ProcessorDefault,
		},
		{
			name:     "only default failing picks fallback",
			def:      snap(true, 0, 0),
			fallback: snap(false, 10, 5),
			want:     types.ProcessorFallback,
		},
		{
			name:     "only fallback failing picks default",
			def:      snap(false, 10, 5),
			fallback: snap(true, 0, 0),
			want:     types.ProcessorDefault,
		},
		{
			name:     "lower default latency wins",
			def:      snap(false, 10, 5),
			fallback: snap(false, 20, 1),
			want:     types.ProcessorDefault,
		},
		{
			name:     "equal latency ties to default",
			def:      snap(false, 10, 50),
			fallback: snap(false, 10, 1),
			want:     types.ProcessorDefault,
		},
		{
			name:     "slower default but lower minResponseTime wins",
			def:      snap(false, 30, 1),
			fallback: snap(false, 10, 5),
			want:     types.ProcessorDefault,
		},
		{
			name:     "slower default on both criteria picks fallback",
			def:      snap(false, 30, 8),
			fallback: snap(false, 10, 5),
			want:     types.ProcessorFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Select(tt.def, tt.fallback)
			if !ok {
				t.Fatal("Select returned no processor")
			}
			if got != tt.want {
				t.Errorf("Select = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	def := snap(false, 12.5, 3)
	fallback := snap(false, 12.5, 2)

	first, _ := Select(def, fallback)
	for i := 0; i < 100; i++ {
		got, ok := Select(def, fallback)
		if !ok || got != first {
			t.Fatalf("Select flapped on identical input: %s then %s", first, got)
		}
	}
}

// Package selector picks which processor a payment should go to, from
// two health snapshots. Pure decision logic, no I/O.
package selector

import "go-gateway/internal/types"

// Select applies the routing decision table. When both processors are
// failing it still returns default: traffic keeps flowing to a
// last-resort processor instead of piling up, which is a deliberate
// policy. The second return value reports whether any processor was
// selected; callers must handle false even though the current table
// never produces it.
func Select(def, fallback types.HealthSnapshot) (types.Processor, bool) {
	if def.Failing && fallback.Failing {
		return types.ProcessorDefault, true
	}

	if def.Failing {
		return types.ProcessorFallback, true
	}

	if fallback.Failing {
		return types.ProcessorDefault, true
	}

	return selectBestPerforming(def, fallback), true
}

// selectBestPerforming compares two healthy processors. Probe latency
// is the primary criterion, the processor-reported minResponseTime the
// secondary one; ties go to default.
func selectBestPerforming(def, fallback types.HealthSnapshot) types.Processor {
	if def.Latency <= fallback.Latency {
		return types.ProcessorDefault
	}

	if def.MinResponseTime <= fallback.MinResponseTime {
		return types.ProcessorDefault
	}

	return types.ProcessorFallback
}

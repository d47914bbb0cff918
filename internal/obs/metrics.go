package obs

import "time"

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// ObserveCalculation records one calculation outcome. kind is empty on success. Collectors
// that were never registered are skipped, so library callers need not initialise metrics.
func ObserveCalculation(region, kind string, elapsed time.Duration) {
	result := "ok"
	if kind != "" {
		result = "error"
	}
	if CalculationsTotal != nil {
		CalculationsTotal.WithLabelValues(region, result, kind).Inc()
	}
	if CalculationLatency != nil {
		CalculationLatency.WithLabelValues(result).Observe(DurationMillis(elapsed))
	}
}

// ObserveQuoteCache records a cache lookup outcome: hit, miss or error.
func ObserveQuoteCache(result string) {
	if QuoteCacheTotal != nil {
		QuoteCacheTotal.WithLabelValues(result).Inc()
	}
}

// ObserveRuleReload records a reload attempt and, on success, the size of the active table.
func ObserveRuleReload(trigger string, err error, version string, rules int) {
	if RuleReloadsTotal != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		RuleReloadsTotal.WithLabelValues(trigger, result).Inc()
	}
	if err == nil && ActiveRules != nil {
		ActiveRules.Reset()
		ActiveRules.WithLabelValues(version).Set(float64(rules))
	}
}

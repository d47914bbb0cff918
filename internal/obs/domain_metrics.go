package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pricingOnce sync.Once

	// CalculationsTotal counts breakdown calculations by result and error kind.
	CalculationsTotal *prometheus.CounterVec
	// CalculationLatency records calculation latency in milliseconds.
	CalculationLatency *prometheus.HistogramVec
	// QuoteCacheTotal counts quote cache lookups by outcome.
	QuoteCacheTotal *prometheus.CounterVec
	// RuleReloadsTotal counts rule table reload attempts by trigger and result.
	RuleReloadsTotal *prometheus.CounterVec
	// ActiveRules reports the number of rules in the active table, labelled by version.
	ActiveRules *prometheus.GaugeVec
)

// MustRegisterPricingMetrics initialises and registers the pricing collectors. Safe to call
// more than once; only the first call registers.
func MustRegisterPricingMetrics(namespace string, reg prometheus.Registerer) {
	pricingOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_calculations_total",
			Help:      "Count of breakdown calculations by outcome.",
		}, []string{"region", "result", "kind"})
		CalculationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_calculation_duration_ms",
			Help:      "Latency of breakdown calculations in milliseconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}, []string{"result"})
		QuoteCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quote_cache_total",
			Help:      "Count of quote cache lookups by outcome.",
		}, []string{"result"})
		RuleReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_rule_reloads_total",
			Help:      "Count of rule table reloads by trigger and outcome.",
		}, []string{"trigger", "result"})
		ActiveRules = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pricing_active_rules",
			Help:      "Number of tax rules in the active table.",
		}, []string{"version"})

		mustRegisterCollector(reg, CalculationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CalculationsTotal = v
			}
		})
		mustRegisterCollector(reg, CalculationLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CalculationLatency = v
			}
		})
		mustRegisterCollector(reg, QuoteCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteCacheTotal = v
			}
		})
		mustRegisterCollector(reg, RuleReloadsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RuleReloadsTotal = v
			}
		})
		mustRegisterCollector(reg, ActiveRules, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.GaugeVec); ok {
				ActiveRules = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register pricing metric: %w", err))
	}
}

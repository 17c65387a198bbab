package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type SaleMetrics struct {
	contributions   *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	usdRaised       prometheus.Gauge
	sharesIssued    prometheus.Gauge
	contributorsNow prometheus.Gauge
}

var (
	saleOnce     sync.Once
	saleRegistry *SaleMetrics
)

func Sale() *SaleMetrics {
	saleOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_contributions_total",
				Help: "Count of credited contributions by payment method.",
			}, []string{"method"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_rejections_total",
				Help: "Count of rejected operations by error kind.",
			}, []string{"reason"}),
			usdRaised: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sale_usd_raised",
				Help: "Total canonical USD value credited, in whole USD.",
			}),
			sharesIssued: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sale_shares_issued",
				Help: "Total shares issued, in whole shares.",
			}),
			contributorsNow: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sale_unique_contributors",
				Help: "Count of distinct contributors with a credited contribution.",
			}),
		}
		prometheus.MustRegister(
			saleRegistry.contributions,
			saleRegistry.rejections,
			saleRegistry.usdRaised,
			saleRegistry.sharesIssued,
			saleRegistry.contributorsNow,
		)
	})
	return saleRegistry
}

// ObserveContribution records a credited contribution for the supplied method.
func (m *SaleMetrics) ObserveContribution(method string) {
	if m == nil {
		return
	}
	m.contributions.WithLabelValues(method).Inc()
}

// ObserveRejection records a rejected operation under its error kind.
func (m *SaleMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// SetTotals refreshes the aggregate gauges from the ledger stats. Values are
// scaled down to whole units to stay within float range.
func (m *SaleMetrics) SetTotals(usdValue, sharesIssued *big.Int, uniqueContributors uint64) {
	if m == nil {
		return
	}
	m.usdRaised.Set(wholeUnits(usdValue))
	m.sharesIssued.Set(wholeUnits(sharesIssued))
	m.contributorsNow.Set(float64(uniqueContributors))
}

var wadScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func wholeUnits(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	whole := new(big.Int).Quo(amount, wadScale)
	value, _ := new(big.Float).SetInt(whole).Float64()
	return value
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats is a point-in-time view of ledger state.
type PoolStats struct {
	Slot         uint64
	Accounts     uint64
	TotalStaked  uint64
	TotalReceipt uint64
	// Reserve is the pool account's lamport balance.
	Reserve     uint64
	LinkedCards int
}

// StatsSource provides PoolStats on demand.
type StatsSource interface {
	PoolStats() (PoolStats, error)
}

// PoolCollector reads pool state from a StatsSource on every scrape.
type PoolCollector struct {
	source StatsSource

	slot         *prometheus.Desc
	accounts     *prometheus.Desc
	totalStaked  *prometheus.Desc
	totalReceipt *prometheus.Desc
	reserve      *prometheus.Desc
	linkedCards  *prometheus.Desc
}

// NewPoolCollector creates a collector over source.
func NewPoolCollector(source StatsSource) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "", name), help, nil, nil)
	}
	return &PoolCollector{
		source:       source,
		slot:         desc("slot", "Slot of the last committed transaction."),
		accounts:     desc("accounts", "Accounts stored in the ledger."),
		totalStaked:  desc("total_staked_lamports", "Lamports staked in the pool."),
		totalReceipt: desc("total_receipt", "Receipt tokens outstanding."),
		reserve:      desc("pool_reserve_lamports", "Lamport balance of the pool account."),
		linkedCards:  desc("linked_cards", "Cards currently linked to stakers."),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.slot
	ch <- c.accounts
	ch <- c.totalStaked
	ch <- c.totalReceipt
	ch <- c.reserve
	ch <- c.linkedCards
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.source.PoolStats()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.totalStaked, err)
		return
	}
	gauge := func(desc *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v)
	}
	gauge(c.slot, float64(stats.Slot))
	gauge(c.accounts, float64(stats.Accounts))
	gauge(c.totalStaked, float64(stats.TotalStaked))
	gauge(c.totalReceipt, float64(stats.TotalReceipt))
	gauge(c.reserve, float64(stats.Reserve))
	gauge(c.linkedCards, float64(stats.LinkedCards))
}

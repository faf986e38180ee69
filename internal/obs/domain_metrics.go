package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout computations by entry point and result.
	CheckoutTotal *prometheus.CounterVec
	// OrderCommitTotal counts commit saga outcomes.
	OrderCommitTotal *prometheus.CounterVec
	// CouponLockTotal counts coupon ledger lock attempts by result.
	CouponLockTotal *prometheus.CounterVec
	// SagaCompensationTotal counts executed compensation steps.
	SagaCompensationTotal *prometheus.CounterVec
	// ShippingUndeliverableTotal counts shipping calculations rejected for deliverability.
	ShippingUndeliverableTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout computations by entry point and result.",
		}, []string{"entry", "result"})
		OrderCommitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_commit_total",
			Help:      "Count of order commit saga outcomes.",
		}, []string{"result"})
		CouponLockTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_lock_total",
			Help:      "Count of coupon ledger lock attempts by result.",
		}, []string{"result"})
		SagaCompensationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saga_compensation_total",
			Help:      "Count of compensation steps executed by the commit saga.",
		}, []string{"step"})
		ShippingUndeliverableTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_undeliverable_total",
			Help:      "Count of shipping calculations that found no deliverable route.",
		})

		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, OrderCommitTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderCommitTotal = v
			}
		})
		mustRegisterCollector(reg, CouponLockTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CouponLockTotal = v
			}
		})
		mustRegisterCollector(reg, SagaCompensationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SagaCompensationTotal = v
			}
		})
		mustRegisterCollector(reg, ShippingUndeliverableTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ShippingUndeliverableTotal = v
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
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

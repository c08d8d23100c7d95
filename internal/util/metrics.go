package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_orders_created_total",
		Help: "Total number of replenishment orders created",
	})

	OrdersApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_orders_approved_total",
		Help: "Total number of orders approved and allocated",
	})

	OrdersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_orders_rejected_total",
		Help: "Total number of orders rejected",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_orders_cancelled_total",
		Help: "Total number of orders cancelled",
	})

	AllocationShortfallTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_allocation_shortfall_total",
		Help: "Total number of order items approved below the requested quantity",
	})

	ShipmentsDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_shipments_dispatched_total",
		Help: "Total number of shipments dispatched",
	})

	BatchReplacementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_batch_replacements_total",
		Help: "Total number of damaged batch replacement attempts",
	}, []string{"outcome"})

	ReceiptsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_receipts_processed_total",
		Help: "Total number of shipment receipts reconciled",
	})

	DiscrepanciesEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_discrepancies_emitted_total",
		Help: "Total number of discrepancy records emitted to claims",
	}, []string{"kind"})

	LedgerOpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fulfillment_ledger_op_latency_seconds",
		Help:    "Latency of inventory ledger operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	ApproveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fulfillment_approve_latency_seconds",
		Help:    "Latency of order approval (allocation and reservation)",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

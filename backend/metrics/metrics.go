// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package metrics holds the service's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "efmod"

type Metrics struct {
	messagesSent   *prometheus.CounterVec
	filterFlags    *prometheus.CounterVec
	reviews        *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	gatherer       prometheus.Gatherer
}

// New registers the collectors on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages accepted by the store.",
		}, []string{"conversation_type"}),
		filterFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_flags_total",
			Help:      "Content filter detections by flag type.",
		}, []string{"type"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_reviews_total",
			Help:      "Moderator review decisions.",
		}, []string{"decision"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Best-effort notifications that failed.",
		}, []string{"sink"}),
		gatherer: gatherer,
	}
	reg.MustRegister(m.messagesSent, m.filterFlags, m.reviews, m.notifyFailures)
	return m
}

func (m *Metrics) MessageSent(conversationType string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(conversationType).Inc()
}

func (m *Metrics) FilterFlag(flagType string) {
	if m == nil {
		return
	}
	m.filterFlags.WithLabelValues(flagType).Inc()
}

func (m *Metrics) Review(decision string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(decision).Inc()
}

func (m *Metrics) NotifyFailure(sink string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(sink).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

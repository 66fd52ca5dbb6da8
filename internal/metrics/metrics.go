// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Registrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brainyx_registrations_total",
		Help: "Number of accounts created.",
	})

	ChatMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brainyx_chat_messages_total",
		Help: "Number of chat messages answered in conversations.",
	})

	PublicAPICalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brainyx_public_api_calls_total",
		Help: "Number of completed public API chat calls.",
	})

	LLMFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brainyx_llm_fallbacks_total",
		Help: "Number of provider failures answered with the fallback reply.",
	})

	CreditsDebited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brainyx_credits_debited_total",
		Help: "Credits debited, by source.",
	}, []string{"source"})

	CreditsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brainyx_credits_granted_total",
		Help: "Credits added by plan purchases, by plan.",
	}, []string{"plan"})
)

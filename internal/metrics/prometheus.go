package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	TransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_credential_transitions_total",
		Help: "Credential lifecycle transitions by operation and result.",
	}, []string{"operation", "result"})

	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_requests_total",
		Help: "Protocol requests by response type and outcome code.",
	}, []string{"response_type", "code"})

	ClientAuthFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_client_auth_failures_total",
		Help: "Requests rejected because the client credentials did not verify.",
	})

	CredentialsCleanedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_credentials_cleaned_total",
		Help: "Expired credential records removed by cleanup.",
	})

	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_token_cache_lookups_total",
		Help: "Access token cache lookups by result.",
	}, []string{"result"})
)

// InitCustomMetrics registers the collectors with reg. It should be called
// once at startup; duplicate registrations are logged and ignored.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"TransitionsTotal":        TransitionsTotal,
		"RequestsTotal":           RequestsTotal,
		"ClientAuthFailuresTotal": ClientAuthFailuresTotal,
		"CredentialsCleanedTotal": CredentialsCleanedTotal,
		"CacheLookupsTotal":       CacheLookupsTotal,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}

	log.Info().Msg("Custom Prometheus metrics registered.")
}

// Result labels a transition outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

package authstate

import "github.com/prometheus/client_golang/prometheus"

var (
	refreshSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purehome_auth_refresh_success_total",
			Help: "Successful token refreshes",
		},
		[]string{"provider"},
	)
	refreshFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purehome_auth_refresh_failure_total",
			Help: "Failed token refreshes",
		},
		[]string{"provider"},
	)
	authSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purehome_auth_login_success_total",
			Help: "Successful full authentications",
		},
		[]string{"provider"},
	)
	authFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purehome_auth_login_failure_total",
			Help: "Failed full authentications",
		},
		[]string{"provider"},
	)
	tokenValid = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "purehome_auth_token_valid",
			Help: "Cached token validity (1=valid, 0=invalid)",
		},
		[]string{"provider"},
	)
	remotePersistOK = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "purehome_auth_remote_persist_ok",
			Help: "Remote blob persistence health (1=ok, 0=error)",
		},
		[]string{"provider"},
	)
	accountMismatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purehome_auth_account_mismatch_total",
			Help: "Persisted state discarded because the account changed",
		},
		[]string{"provider"},
	)
)

// ObserveRefresh records a refresh outcome for dashboards.
func ObserveRefresh(provider string, ok bool) {
	if ok {
		refreshSuccess.WithLabelValues(provider).Inc()
	} else {
		refreshFailure.WithLabelValues(provider).Inc()
	}
}

// ObserveLogin records a full authentication outcome.
func ObserveLogin(provider string, ok bool) {
	if ok {
		authSuccess.WithLabelValues(provider).Inc()
	} else {
		authFailure.WithLabelValues(provider).Inc()
	}
}

// SetTokenValid flips the token validity gauge.
func SetTokenValid(provider string, valid bool) {
	if valid {
		tokenValid.WithLabelValues(provider).Set(1)
	} else {
		tokenValid.WithLabelValues(provider).Set(0)
	}
}

// MetricsCollectors returns collectors for the shared auth module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		refreshSuccess,
		refreshFailure,
		authSuccess,
		authFailure,
		tokenValid,
		remotePersistOK,
		accountMismatch,
	}
}

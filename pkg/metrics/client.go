package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics records activity of the per-client workspaces.
type ClientMetrics struct {
	cartMutations  *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
	authAttempts   *prometheus.CounterVec
	storeDegraded  *prometheus.CounterVec
	workspaces     prometheus.Gauge
}

// NewClientMetrics registers the client metrics on the provided registerer.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	if reg == nil {
		return &ClientMetrics{}
	}
	cartMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations by operation.",
	}, []string{"op"})
	guardDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_decisions_total",
		Help: "Route guard decisions by outcome.",
	}, []string{"decision"})
	authAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_attempts_total",
		Help: "Login and registration attempts by action and result.",
	}, []string{"action", "result"})
	storeDegraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kv_degraded_total",
		Help: "Workspaces that fell back to in-memory storage, by failing operation.",
	}, []string{"op"})
	workspaces := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "client_workspaces",
		Help: "Live client workspaces.",
	})
	reg.MustRegister(cartMutations, guardDecisions, authAttempts, storeDegraded, workspaces)
	return &ClientMetrics{
		cartMutations:  cartMutations,
		guardDecisions: guardDecisions,
		authAttempts:   authAttempts,
		storeDegraded:  storeDegraded,
		workspaces:     workspaces,
	}
}

// IncCartMutation counts a cart operation.
func (c *ClientMetrics) IncCartMutation(op string) {
	if c == nil || c.cartMutations == nil {
		return
	}
	c.cartMutations.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncGuardDecision counts a route guard outcome.
func (c *ClientMetrics) IncGuardDecision(decision string) {
	if c == nil || c.guardDecisions == nil {
		return
	}
	c.guardDecisions.WithLabelValues(normalizeLabel(decision)).Inc()
}

// IncAuthAttempt counts a login or registration attempt.
func (c *ClientMetrics) IncAuthAttempt(action, result string) {
	if c == nil || c.authAttempts == nil {
		return
	}
	c.authAttempts.WithLabelValues(normalizeLabel(action), normalizeLabel(result)).Inc()
}

// IncStoreDegraded counts a workspace switching to in-memory storage.
func (c *ClientMetrics) IncStoreDegraded(op string) {
	if c == nil || c.storeDegraded == nil {
		return
	}
	c.storeDegraded.WithLabelValues(normalizeLabel(op)).Inc()
}

// SetWorkspaces records the number of live workspaces.
func (c *ClientMetrics) SetWorkspaces(n int) {
	if c == nil || c.workspaces == nil {
		return
	}
	c.workspaces.Set(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

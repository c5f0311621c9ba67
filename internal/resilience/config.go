package resilience

import (
	"sync"
	"time"

	"github.com/sells-group/jobcheck/internal/config"
)

// RetryFromConfig builds a RetryConfig from the resilience section of the
// application config. Zero values fall back to the defaults.
func RetryFromConfig(cfg config.ResilienceConfig) RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffMS > 0 {
		rc.InitialBackoff = time.Duration(cfg.InitialBackoffMS) * time.Millisecond
	}
	if cfg.MaxBackoffMS > 0 {
		rc.MaxBackoff = time.Duration(cfg.MaxBackoffMS) * time.Millisecond
	}
	if cfg.Jitter >= 0 {
		rc.JitterFraction = cfg.Jitter
	}
	return rc
}

// CircuitFromConfig builds a CircuitBreakerConfig from the application config.
func CircuitFromConfig(cfg config.ResilienceConfig) CircuitBreakerConfig {
	cc := DefaultCircuitBreakerConfig()
	if cfg.CircuitThreshold > 0 {
		cc.FailureThreshold = cfg.CircuitThreshold
	}
	if cfg.CircuitResetSecs > 0 {
		cc.ResetTimeout = time.Duration(cfg.CircuitResetSecs) * time.Second
	}
	return cc
}

// ServiceBreakers holds one lazily created breaker per provider name.
type ServiceBreakers struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewServiceBreakers creates a registry whose breakers share cfg.
func NewServiceBreakers(cfg CircuitBreakerConfig) *ServiceBreakers {
	return &ServiceBreakers{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for provider, creating it on first use.
func (sb *ServiceBreakers) Get(provider string) *CircuitBreaker {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if cb, ok := sb.breakers[provider]; ok {
		return cb
	}
	cfg := sb.cfg
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = StateLogger(provider)
	}
	cb := NewCircuitBreaker(cfg)
	sb.breakers[provider] = cb
	return cb
}

// States returns the current state of every known breaker.
func (sb *ServiceBreakers) States() map[string]CircuitState {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	out := make(map[string]CircuitState, len(sb.breakers))
	for name, cb := range sb.breakers {
		out[name] = cb.State()
	}
	return out
}

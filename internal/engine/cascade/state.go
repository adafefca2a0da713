package cascade

import (
	"time"
)

// Default TTLs mirroring the conversational cadence of a desktop assistant:
// once an hour is often enough to rediscover models or retry an exhausted
// quota.
const (
	DefaultModelRecheckTTL = time.Hour
	DefaultModelListTTL    = time.Hour
	DefaultQuotaTTL        = time.Hour
)

// ProviderState is the per-provider cache mutated after every cascade
// attempt. It is persisted at checkpoints so restarts skip redundant model
// discovery.
type ProviderState struct {
	// WorkingModel is the identifier that last produced a completion, or
	// "" when unknown.
	WorkingModel string `json:"working_model,omitempty" yaml:"working_model,omitempty"`

	// WorkingModelCheckedAt is when WorkingModel last succeeded.
	WorkingModelCheckedAt time.Time `json:"working_model_checked_at,omitempty" yaml:"working_model_checked_at,omitempty"`

	// Models is the cached model list in backend order.
	Models []string `json:"models,omitempty" yaml:"models,omitempty"`

	// ModelsFetchedAt is when Models was retrieved.
	ModelsFetchedAt time.Time `json:"models_fetched_at,omitempty" yaml:"models_fetched_at,omitempty"`

	// QuotaExceededUntil makes the cascade skip this provider entirely
	// until the deadline passes. Zero means no quota block.
	QuotaExceededUntil time.Time `json:"quota_exceeded_until,omitempty" yaml:"quota_exceeded_until,omitempty"`
}

// cache holds the mutable ProviderState per provider name. It is accessed
// only from the single-threaded resolution step, so it carries no lock.
type cache struct {
	states map[string]*ProviderState

	recheckTTL time.Duration
	listTTL    time.Duration
	quotaTTL   time.Duration

	now func() time.Time
}

func newCache(recheckTTL, listTTL, quotaTTL time.Duration) *cache {
	if recheckTTL <= 0 {
		recheckTTL = DefaultModelRecheckTTL
	}
	if listTTL <= 0 {
		listTTL = DefaultModelListTTL
	}
	if quotaTTL <= 0 {
		quotaTTL = DefaultQuotaTTL
	}
	return &cache{
		states:     make(map[string]*ProviderState),
		recheckTTL: recheckTTL,
		listTTL:    listTTL,
		quotaTTL:   quotaTTL,
		now:        time.Now,
	}
}

// state returns the ProviderState for name, creating it on first use.
func (c *cache) state(name string) *ProviderState {
	st, ok := c.states[name]
	if !ok {
		st = &ProviderState{}
		c.states[name] = st
	}
	return st
}

// quotaBlocked reports whether the provider is inside its quota-exceeded
// window.
func (c *cache) quotaBlocked(name string) bool {
	st := c.state(name)
	return !st.QuotaExceededUntil.IsZero() && c.now().Before(st.QuotaExceededUntil)
}

// markQuotaExceeded starts the quota window for the provider.
func (c *cache) markQuotaExceeded(name string) {
	c.state(name).QuotaExceededUntil = c.now().Add(c.quotaTTL)
}

// workingModel returns the cached model when its age is below the recheck
// TTL, or "".
func (c *cache) workingModel(name string) string {
	st := c.state(name)
	if st.WorkingModel == "" {
		return ""
	}
	if c.now().Sub(st.WorkingModelCheckedAt) >= c.recheckTTL {
		return ""
	}
	return st.WorkingModel
}

// touchWorkingModel records model as freshly verified for the provider.
func (c *cache) touchWorkingModel(name, model string) {
	st := c.state(name)
	st.WorkingModel = model
	st.WorkingModelCheckedAt = c.now()
}

// clearWorkingModel invalidates the cached model, used on NotFound and
// unclassified completion failures.
func (c *cache) clearWorkingModel(name string) {
	st := c.state(name)
	st.WorkingModel = ""
	st.WorkingModelCheckedAt = time.Time{}
}

// cachedModels returns the TTL-fresh model list, or nil when a fetch is
// needed.
func (c *cache) cachedModels(name string) []string {
	st := c.state(name)
	if st.Models == nil || c.now().Sub(st.ModelsFetchedAt) >= c.listTTL {
		return nil
	}
	return st.Models
}

// storeModels caches a freshly fetched model list.
func (c *cache) storeModels(name string, models []string) {
	st := c.state(name)
	st.Models = models
	st.ModelsFetchedAt = c.now()
}

// Snapshot returns a deep copy of every provider's state, suitable for
// persistence.
func (c *cache) Snapshot() map[string]ProviderState {
	out := make(map[string]ProviderState, len(c.states))
	for name, st := range c.states {
		cp := *st
		cp.Models = append([]string(nil), st.Models...)
		out[name] = cp
	}
	return out
}

// seed installs persisted state, typically at session start.
func (c *cache) seed(states map[string]ProviderState) {
	for name, st := range states {
		cp := st
		cp.Models = append([]string(nil), st.Models...)
		c.states[name] = &cp
	}
}

package domain

import "time"

const BaseCurrency = "USD"

type RateSource string

const (
	RateSourceLive         RateSource = "live"
	RateSourceIdentity     RateSource = "identity"
	RateSourceFallback     RateSource = "fallback"
	RateSourceNotRequested RateSource = "not_requested"
)

// RateSnapshot is a single USD->Target conversion. Degraded is set whenever
// Rate is the fallback constant rather than a value from the provider.
type RateSnapshot struct {
	Base      string     `json:"base"`
	Target    string     `json:"target"`
	Rate      float64    `json:"rate"`
	Degraded  bool       `json:"degraded"`
	Source    RateSource `json:"source"`
	Reason    string     `json:"reason,omitempty"`
	FetchedAt time.Time  `json:"fetched_at"`
}

package types //nolint:revive // package name is intentional

import "time"

// Response is a completed request as returned by a provider and annotated by
// the balancer.
type Response struct {
	ID           string        `json:"id"`
	Content      string        `json:"content"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	TokensUsed   int           `json:"tokens_used"`
	Latency      time.Duration `json:"latency"`
	CostUSD      float64       `json:"cost_usd"`
	QualityScore float64       `json:"quality_score"`

	// Cached marks responses served from the response cache rather than a
	// live provider call.
	Cached bool `json:"cached,omitempty"`
}

// Clone returns an independent copy. Cache hits are always served as clones
// so callers may mutate results freely without corrupting the stored entry.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

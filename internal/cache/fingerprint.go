// Package cache provides the response cache: deterministic request
// fingerprints mapped to completed responses with a TTL.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/llmlb/llmlb/pkg/types"
)

// keyPrefix namespaces balancer response keys.
const keyPrefix = "llmlb:resp"

// fingerprintParams is the canonical tuple hashed into a cache key. Priority
// and timeout are deliberately absent: they affect scheduling, not content.
type fingerprintParams struct {
	Prompt          string `json:"prompt"`
	MaxTokens       int    `json:"max_tokens"`
	Temperature     string `json:"temperature"`
	ModelPreference string `json:"model_preference"`
}

// Fingerprint derives the deterministic cache key for a request. Requests
// that differ only in priority or timeout share a key.
func Fingerprint(req *types.Request) string {
	params := fingerprintParams{
		Prompt:          req.Prompt,
		MaxTokens:       req.EffectiveMaxTokens(),
		Temperature:     fmt.Sprintf("%.2f", req.Temperature),
		ModelPreference: string(req.ModelPreference),
	}

	// Marshal of a fixed struct is deterministic: field order is fixed and
	// every value is scalar.
	payload, err := json.Marshal(params)
	if err != nil {
		// Cannot happen for this struct; fall back to the raw prompt.
		payload = []byte(req.Prompt)
	}

	sum := sha256.Sum256(payload)
	var key strings.Builder
	key.WriteString(keyPrefix)
	key.WriteString(":")
	key.WriteString(hex.EncodeToString(sum[:]))
	return key.String()
}

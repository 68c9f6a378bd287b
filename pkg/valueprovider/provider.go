package valueprovider

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/cuemby/burrow/pkg/types"
)

// ErrExhausted is returned when every value of every pattern is in use
var ErrExhausted = errors.New("value provider exhausted")

// maxRandomAttempts bounds generation from patterns with hash components,
// which never run out but may keep colliding.
const maxRandomAttempts = 1000

// Provider generates and validates values for one value provider capability
type Provider struct {
	patterns []*Pattern
	allowAny bool
	rnd      *rand.Rand
}

// New parses the patterns of capability
func New(capability *types.ValueProviderCapability) (*Provider, error) {
	if capability == nil {
		return nil, fmt.Errorf("value provider capability is missing")
	}
	p := &Provider{allowAny: capability.AllowAnyRequestedValue}
	for _, raw := range capability.Patterns {
		pattern, err := ParsePattern(raw)
		if err != nil {
			return nil, err
		}
		p.patterns = append(p.patterns, pattern)
	}
	return p, nil
}

// WithRand makes hash generation use rnd
func (p *Provider) WithRand(rnd *rand.Rand) *Provider {
	p.rnd = rnd
	return p
}

// IsValid reports whether value may be requested explicitly
func (p *Provider) IsValid(value string) bool {
	if value == "" {
		return false
	}
	if p.allowAny {
		return true
	}
	for _, pattern := range p.patterns {
		if pattern.Matches(value) {
			return true
		}
	}
	return false
}

// Generate returns the first value, in pattern order, not present in used
func (p *Provider) Generate(used map[string]bool) (string, error) {
	for _, pattern := range p.patterns {
		g := pattern.Generator(p.rnd)
		attempts := 0
		for {
			value, ok := g.Next()
			if !ok {
				break
			}
			if !used[value] {
				return value, nil
			}
			if pattern.IsRandom() {
				attempts++
				if attempts >= maxRandomAttempts {
					break
				}
			}
		}
	}
	return "", ErrExhausted
}

package valueprovider

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

// DefaultHashLength is the length of a {hash} component without explicit length
const DefaultHashLength = 6

const (
	hashFirstAlphabet = "abcdefghijklmnopqrstuvwxyz"
	hashAlphabet      = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	digitComponent  = regexp.MustCompile(`^digit:(\d+)$`)
	numberComponent = regexp.MustCompile(`^number:(\d+):(\d+)$`)
	hashComponent   = regexp.MustCompile(`^hash(:(\d+))?$`)
)

// Pattern describes the values a provider may generate, for example
// "room-{digit:3}" or "{hash:8}". Components are:
//
//	{digit:N}        zero padded counter of N digits (1..10), starting at 1
//	{number:MIN:MAX} counter from MIN to MAX, padded to the width of MIN
//	{hash[:N]}       random lowercase string starting with a letter
//	anything else    constant text
type Pattern struct {
	raw        string
	components []component
	matcher    *regexp.Regexp
}

type component interface {
	regex() string
	valid(value string) bool
}

type constant string

func (c constant) regex() string           { return regexp.QuoteMeta(string(c)) }
func (c constant) valid(value string) bool { return true }

type digits struct {
	length int
	max    int64
}

func (d digits) regex() string           { return fmt.Sprintf(`(\d{%d})`, d.length) }
func (d digits) valid(value string) bool { return true }

type numberRange struct {
	min, max int64
	width    int
	maxWidth int
}

func (n numberRange) regex() string { return fmt.Sprintf(`(\d{%d,%d})`, n.width, n.maxWidth) }

func (n numberRange) valid(value string) bool {
	v, err := strconv.ParseInt(value, 10, 64)
	return err == nil && v >= n.min && v <= n.max
}

type hash struct {
	length int
}

func (h hash) regex() string           { return fmt.Sprintf(`([a-z][a-z0-9_-]{%d})`, h.length-1) }
func (h hash) valid(value string) bool { return true }

// ParsePattern parses a pattern string
func ParsePattern(pattern string) (*Pattern, error) {
	p := &Pattern{raw: pattern}
	rest := pattern
	for {
		start := strings.IndexByte(rest, '{')
		if start == -1 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end == -1 {
			break
		}
		end += start
		if start > 0 {
			p.components = append(p.components, constant(rest[:start]))
		}
		c, err := parseComponent(rest[start+1 : end])
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		p.components = append(p.components, c)
		rest = rest[end+1:]
	}
	if rest != "" {
		p.components = append(p.components, constant(rest))
	}

	var re strings.Builder
	re.WriteString("^")
	for _, c := range p.components {
		re.WriteString(c.regex())
	}
	re.WriteString("$")
	matcher, err := regexp.Compile(re.String())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	p.matcher = matcher
	return p, nil
}

func parseComponent(text string) (component, error) {
	if m := digitComponent.FindStringSubmatch(text); m != nil {
		length, _ := strconv.Atoi(m[1])
		if length < 1 || length > 10 {
			return nil, fmt.Errorf("digit component length must be between 1 and 10, got %d", length)
		}
		max := int64(1)
		for i := 0; i < length; i++ {
			max *= 10
		}
		return digits{length: length, max: max - 1}, nil
	}
	if m := numberComponent.FindStringSubmatch(text); m != nil {
		min, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, err
		}
		max, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return nil, err
		}
		if min > max {
			return nil, fmt.Errorf("number component min %d is greater than max %d", min, max)
		}
		return numberRange{min: min, max: max, width: len(m[1]), maxWidth: len(m[2])}, nil
	}
	if m := hashComponent.FindStringSubmatch(text); m != nil {
		length := DefaultHashLength
		if m[2] != "" {
			length, _ = strconv.Atoi(m[2])
		}
		if length <= 0 {
			return nil, fmt.Errorf("hash length must be greater than zero")
		}
		return hash{length: length}, nil
	}
	return nil, fmt.Errorf("component {%s} is in wrong format", text)
}

// String returns the pattern source
func (p *Pattern) String() string {
	return p.raw
}

// IsSingleValue reports whether the pattern is constant text only
func (p *Pattern) IsSingleValue() bool {
	return len(p.components) == 1 && isConstant(p.components[0])
}

// IsRandom reports whether the pattern contains a hash component
func (p *Pattern) IsRandom() bool {
	for _, c := range p.components {
		if _, ok := c.(hash); ok {
			return true
		}
	}
	return false
}

// Matches reports whether value could have been generated by the pattern
func (p *Pattern) Matches(value string) bool {
	m := p.matcher.FindStringSubmatch(value)
	if m == nil {
		return false
	}
	group := 1
	for _, c := range p.components {
		if isConstant(c) {
			continue
		}
		if !c.valid(m[group]) {
			return false
		}
		group++
	}
	return true
}

func isConstant(c component) bool {
	_, ok := c.(constant)
	return ok
}

// Generator enumerates the values of a pattern. Counters advance like an
// odometer starting from the rightmost component.
type Generator struct {
	pattern   *Pattern
	current   []int64
	hashes    []string
	rnd       *rand.Rand
	generated int
	done      bool
}

// Generator returns a fresh generator. rnd may be nil to use the global
// random source for hash components.
func (p *Pattern) Generator(rnd *rand.Rand) *Generator {
	g := &Generator{
		pattern: p,
		current: make([]int64, len(p.components)),
		hashes:  make([]string, len(p.components)),
		rnd:     rnd,
	}
	g.Reset()
	return g
}

// Reset rewinds every counter
func (g *Generator) Reset() {
	for i, c := range g.pattern.components {
		g.current[i] = resetValue(c)
	}
	g.generated = 0
	g.done = false
}

func resetValue(c component) int64 {
	switch v := c.(type) {
	case digits:
		return 0
	case numberRange:
		return v.min - 1
	}
	return 0
}

// Next returns the next value, false when the pattern is exhausted
func (g *Generator) Next() (string, bool) {
	if g.done {
		return "", false
	}
	components := g.pattern.components
	parts := make([]string, len(components))
	carry := true
	for i := len(components) - 1; i >= 0; i-- {
		switch c := components[i].(type) {
		case constant:
			parts[i] = string(c)
		case digits:
			if carry {
				g.current[i]++
			}
			if g.current[i] <= c.max {
				carry = false
			} else {
				carry = true
				g.current[i] = 0
			}
			parts[i] = fmt.Sprintf("%0*d", c.length, g.current[i])
		case numberRange:
			if carry {
				g.current[i]++
			}
			if g.current[i] <= c.max {
				carry = false
			} else {
				carry = true
				g.current[i] = c.min
			}
			if g.current[i] < c.min {
				g.current[i] = c.min
			}
			parts[i] = fmt.Sprintf("%0*d", c.width, g.current[i])
		case hash:
			if carry {
				g.hashes[i] = g.randomHash(c.length)
			}
			carry = false
			parts[i] = g.hashes[i]
		}
	}
	if carry && (!g.pattern.IsSingleValue() || g.generated > 0) {
		g.done = true
		return "", false
	}
	g.generated++
	return strings.Join(parts, ""), true
}

func (g *Generator) randomHash(length int) string {
	intn := rand.IntN
	if g.rnd != nil {
		intn = g.rnd.IntN
	}
	b := make([]byte, length)
	b[0] = hashFirstAlphabet[intn(len(hashFirstAlphabet))]
	for i := 1; i < length; i++ {
		b[i] = hashAlphabet[intn(len(hashAlphabet))]
	}
	return string(b)
}

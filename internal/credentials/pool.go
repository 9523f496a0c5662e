// File: internal/credentials/pool.go
// Description: A concurrency-safe pool of interchangeable decision-service
// credentials. Each platform session pins one credential for its lifetime so
// concurrent sessions do not collide on a single quota; rotation swaps a
// session onto a different credential after quota exhaustion.

package credentials

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prism-cli/api/schemas"
)

// ErrEmptyPool is returned when the pool was constructed without credentials.
var ErrEmptyPool = errors.New("credential pool is empty")

// Credential is an opaque decision-service token.
type Credential string

// Suffix returns the trailing characters used for diagnostics. Full tokens
// are never logged.
func (c Credential) Suffix() string {
	const n = 6
	s := string(c)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Pool tracks credential usage and the platform-to-credential assignment map.
// It is the only state shared between concurrent sessions, so all mutation
// happens under one mutex.
type Pool struct {
	mu       sync.Mutex
	creds    []Credential
	usage    map[Credential]int
	assigned map[schemas.Platform]Credential
	logger   *zap.Logger
}

// NewPool creates a Pool from an ordered list of opaque tokens.
func NewPool(tokens []string, logger *zap.Logger) (*Pool, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyPool
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		creds:    make([]Credential, 0, len(tokens)),
		usage:    make(map[Credential]int, len(tokens)),
		assigned: make(map[schemas.Platform]Credential),
		logger:   logger.Named("credentials"),
	}
	for _, tok := range tokens {
		c := Credential(tok)
		p.creds = append(p.creds, c)
		p.usage[c] = 0
	}

	p.logger.Info("Credential pool initialized", zap.Int("credentials", len(p.creds)))
	return p, nil
}

// Size reports how many credentials the pool holds.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Assign pins the least-loaded credential to the platform for the session's
// lifetime. Repeated calls for the same platform return the pinned
// credential without growing its usage count.
func (p *Pool) Assign(platform schemas.Platform) Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.assigned[platform]; ok {
		return c
	}

	c := p.leastLoadedLocked("")
	p.assigned[platform] = c
	p.usage[c]++

	p.logger.Info("Assigned credential",
		zap.String("platform", string(platform)),
		zap.String("credential", c.Suffix()))
	return c
}

// Rotate moves the platform onto a different credential and returns it. With
// a single-credential pool rotation is a no-op: the caller must rely on
// backoff instead. The old credential's usage count is released; counters
// never go negative.
func (p *Pool) Rotate(platform schemas.Platform) (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) <= 1 {
		return p.creds[0], false
	}

	old, ok := p.assigned[platform]
	if !ok {
		c := p.leastLoadedLocked("")
		p.assigned[platform] = c
		p.usage[c]++
		return c, true
	}

	next := p.leastLoadedLocked(old)
	if next == old {
		return old, false
	}

	if p.usage[old] > 0 {
		p.usage[old]--
	}
	p.usage[next]++
	p.assigned[platform] = next

	p.logger.Info("Rotated credential",
		zap.String("platform", string(platform)),
		zap.String("from", old.Suffix()),
		zap.String("to", next.Suffix()))
	return next, true
}

// Release drops the platform's assignment and decrements usage, typically at
// session end.
func (p *Pool) Release(platform schemas.Platform) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.assigned[platform]
	if !ok {
		return
	}
	delete(p.assigned, platform)
	if p.usage[c] > 0 {
		p.usage[c]--
	}
}

// Usage returns a snapshot of per-credential load, keyed by suffix.
func (p *Pool) Usage() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]int, len(p.usage))
	for c, n := range p.usage {
		out[c.Suffix()] = n
	}
	return out
}

// leastLoadedLocked picks the lowest-usage credential, excluding one token.
// Ties resolve to pool order, which keeps assignment deterministic.
func (p *Pool) leastLoadedLocked(exclude Credential) Credential {
	var best Credential
	bestLoad := -1
	for _, c := range p.creds {
		if c == exclude && len(p.creds) > 1 {
			continue
		}
		if bestLoad == -1 || p.usage[c] < bestLoad {
			best = c
			bestLoad = p.usage[c]
		}
	}
	return best
}

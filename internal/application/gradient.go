package application

import "sync"

// avatarGradients is the palette avatar backgrounds are drawn from.
var avatarGradients = []string{
	"linear-gradient(135deg, #667eea 0%, #764ba2 100%)",
	"linear-gradient(135deg, #f093fb 0%, #f5576c 100%)",
	"linear-gradient(135deg, #4facfe 0%, #00f2fe 100%)",
	"linear-gradient(135deg, #43e97b 0%, #38f9d7 100%)",
	"linear-gradient(135deg, #fa709a 0%, #fee140 100%)",
	"linear-gradient(135deg, #30cfd0 0%, #330867 100%)",
	"linear-gradient(135deg, #a8edea 0%, #fed6e3 100%)",
	"linear-gradient(135deg, #ff9a9e 0%, #fecfef 100%)",
}

// GradientCache hands out avatar gradients round-robin. Once an ID has a
// gradient it keeps it for the lifetime of the cache.
type GradientCache struct {
	mu       sync.Mutex
	assigned map[string]string
	next     int
}

// NewGradientCache returns an empty cache.
func NewGradientCache() *GradientCache {
	return &GradientCache{assigned: make(map[string]string)}
}

// Get returns the gradient of id, assigning the next palette entry on first use.
func (g *GradientCache) Get(id string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if gradient, ok := g.assigned[id]; ok {
		return gradient
	}
	gradient := avatarGradients[g.next%len(avatarGradients)]
	g.next++
	g.assigned[id] = gradient
	return gradient
}

// Len returns the number of IDs with an assigned gradient.
func (g *GradientCache) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.assigned)
}

package supervisor

// canonicalPorts assigns fixed ports to the well-known aliases the public
// dispatch layer always expects to exist, so routing doesn't depend on
// spawn ordering.
var canonicalPorts = map[string]uint16{
	"vlm-fast":  8001,
	"vlm-best":  8002,
	"image-gen": 8003,
}

const poolBasePort = 8010

// portAllocator hands out a port for an alias: an operator-configured
// override first (workers.ports in YAML), then the fixed canonical port for
// well-known aliases, or the next port from a monotonic pool for anything
// else. Pool ports are neither checked for availability nor reused. Must be
// called under the supervisor lock.
type portAllocator struct {
	overrides map[string]uint16
	next      uint16
}

func newPortAllocator(overrides map[string]uint16) *portAllocator {
	return &portAllocator{overrides: overrides, next: poolBasePort}
}

func (p *portAllocator) allocate(alias string) uint16 {
	if port, ok := p.overrides[alias]; ok {
		return port
	}
	if port, ok := canonicalPorts[alias]; ok {
		return port
	}
	port := p.next
	p.next++
	return port
}

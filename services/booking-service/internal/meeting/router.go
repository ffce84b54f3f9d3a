package meeting

import "context"

// Router dispatches to the adapter registered for a platform and falls back
// to the mock for everything else.
type Router struct {
	adapters map[Platform]Adapter
	fallback Adapter
}

func NewRouter(adapters map[Platform]Adapter) *Router {
	r := &Router{adapters: map[Platform]Adapter{}, fallback: NewMockAdapter()}
	for p, a := range adapters {
		if a != nil {
			r.adapters[p] = a
		}
	}
	return r
}

func (r *Router) Provision(ctx context.Context, req Request) (Details, error) {
	if a, ok := r.adapters[req.Platform]; ok {
		return a.Provision(ctx, req)
	}
	if req.Platform != Zoom && req.Platform != GoogleMeet && req.Platform != MicrosoftTeams {
		req.Platform = Generic
	}
	return r.fallback.Provision(ctx, req)
}

// Cancel removes d from the provider that created it. Meetings from
// unregistered platforms came from the mock and need no cleanup.
func (r *Router) Cancel(ctx context.Context, d Details) error {
	if a, ok := r.adapters[d.Platform]; ok {
		return a.Cancel(ctx, d)
	}
	return r.fallback.Cancel(ctx, d)
}

// Registered reports whether a real adapter serves p.
func (r *Router) Registered(p Platform) bool {
	_, ok := r.adapters[p]
	return ok
}

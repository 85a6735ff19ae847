package session

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry holds the session servers of the gateway, keyed by name.
type Registry struct {
	servers *xsync.MapOf[string, *Server]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{servers: xsync.NewMapOf[string, *Server]()}
}

// Add registers s under its name, replacing any server with the same name.
func (r *Registry) Add(s *Server) {
	r.servers.Store(s.Name(), s)
}

// Get returns the server registered under name.
func (r *Registry) Get(name string) (*Server, bool) {
	return r.servers.Load(name)
}

// Remove unregisters the server with the given name.
func (r *Registry) Remove(name string) {
	r.servers.Delete(name)
}

// Len returns the number of registered servers.
func (r *Registry) Len() int {
	return r.servers.Size()
}

// Servers returns the registered servers sorted by name.
func (r *Registry) Servers() []*Server {
	out := make([]*Server, 0, r.servers.Size())
	r.servers.Range(func(_ string, s *Server) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })

	return out
}

// ResetAll posts a forced disconnect to every registered server.
func (r *Registry) ResetAll() {
	r.servers.Range(func(_ string, s *Server) bool {
		s.ResetConnection()
		return true
	})
}

// Stats sums the received and sent frame counters of the registered servers.
func (r *Registry) Stats() (received, sent uint64) {
	r.servers.Range(func(_ string, s *Server) bool {
		received += s.Metrics().FrameRecvCount.Load()
		sent += s.Metrics().FrameSendCount.Load()
		return true
	})

	return received, sent
}

// CloseAll closes every registered server.
func (r *Registry) CloseAll() {
	r.servers.Range(func(_ string, s *Server) bool {
		_ = s.Close()
		return true
	})
}

package runtime

import (
	"net/http"
	"sort"
	"strings"

	"github.com/drblury/localbroker/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/localbroker/internal/runtime/logging"
)

// ServiceInfo describes one live service.
type ServiceInfo struct {
	Name    string   `json:"name"`
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// MethodInfo describes one installed method together with its call statistics.
type MethodInfo struct {
	Key     string      `json:"key"`
	Service string      `json:"service"`
	Stats   MethodStats `json:"stats"`
}

// Services lists the live services in registration order.
func (b *Broker) Services() []ServiceInfo {
	b.servicesMu.Lock()
	defer b.servicesMu.Unlock()

	out := make([]ServiceInfo, 0, b.services.Len())
	for pair := b.services.Oldest(); pair != nil; pair = pair.Next() {
		reg := pair.Value
		info := ServiceInfo{
			Name:    pair.Key.Name(),
			Methods: append([]string(nil), reg.methods...),
		}
		seen := make(map[string]struct{}, len(reg.subscriptions))
		for _, sub := range reg.subscriptions {
			if _, ok := seen[sub.event]; ok {
				continue
			}
			seen[sub.event] = struct{}{}
			info.Events = append(info.Events, sub.event)
		}
		sort.Strings(info.Methods)
		out = append(out, info)
	}
	return out
}

// Methods lists the installed methods sorted by key.
func (b *Broker) Methods() []MethodInfo {
	keys := b.registry.Keys()
	out := make([]MethodInfo, 0, len(keys))
	for _, key := range keys {
		entry, ok := b.registry.Lookup(key)
		if !ok {
			continue
		}
		info := MethodInfo{Key: key, Service: entry.Namespace}
		if stats, ok := b.stats.Get(key); ok {
			info.Stats = stats.Snapshot()
		}
		out = append(out, info)
	}
	return out
}

// MethodStats returns the statistics of the method stored under key. They
// survive the destruction of the owning service.
func (b *Broker) MethodStats(key string) (MethodStats, bool) {
	stats, ok := b.stats.Get(key)
	if !ok {
		return MethodStats{}, false
	}
	return stats.Snapshot(), true
}

func (b *Broker) registerAdminHandlers() {
	port := b.Conf.AdminPort
	if port == 0 {
		port = 8081
	}

	b.RegisterHTTPHandler(port, "/api/services", b.adminHandler("services", func(*http.Request) (any, error) {
		return b.Services(), nil
	}))
	b.RegisterHTTPHandler(port, "/api/methods", b.adminHandler("methods", func(*http.Request) (any, error) {
		return b.Methods(), nil
	}))
	b.RegisterHTTPHandler(port, "/api/nodes", b.adminHandler("nodes", func(r *http.Request) (any, error) {
		return b.NodeList(r.Context())
	}))
}

func (b *Broker) adminHandler(name string, load func(*http.Request) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if b.Conf != nil && len(b.Conf.AdminCORSAllowedOrigins) > 0 {
			origin := r.Header.Get("Origin")
			if allowedOrigin := b.getAllowedCORSOrigin(origin); allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
		}

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodGet:
		default:
			w.Header().Set("Allow", "GET, OPTIONS")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		payload, err := load(r)
		if err != nil {
			b.Logger.Error("Failed to load admin data", err, loggingpkg.LogFields{"endpoint": name})
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if err := jsoncodec.Encode(w, payload); err != nil {
			b.Logger.Error("Failed to encode admin response", err, loggingpkg.LogFields{"endpoint": name})
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	})
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func (b *Broker) getAllowedCORSOrigin(requestOrigin string) string {
	if b.Conf == nil {
		return ""
	}
	for _, allowed := range b.Conf.AdminCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}

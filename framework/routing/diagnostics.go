package routing

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/km-arc/go-plugkit/framework/container"
	"github.com/km-arc/go-plugkit/framework/module"
	"github.com/km-arc/go-plugkit/framework/resolver"
)

// Source is what the diagnostics routes read. Plan returns nil until the
// application has booted.
type Source interface {
	Plan() *resolver.Plan
	Bindings() []container.BindingInfo
	Modules() []module.Info
}

// Diagnostics returns a router serving:
//
//	GET /healthz          module health
//	GET /plan             resolved plan summary
//	GET /bindings         every container binding
//	GET /bindings/{name}  one binding
//	GET /modules          modules in activation order
//	GET /metrics          Prometheus exposition (when gatherer is non-nil)
func Diagnostics(src Source, gatherer prometheus.Gatherer, log *zap.Logger) *Router {
	r := New(log)
	h := &diagnostics{src: src}

	r.Get("/healthz", h.health)
	r.Get("/plan", h.plan)
	r.Prefix("/bindings", func(r *Router) {
		r.Get("/", h.bindings)
		r.Get("/{name}", h.binding)
	})
	r.Get("/modules", h.modules)
	if gatherer != nil {
		r.Mount("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type diagnostics struct {
	src Source
}

func (h *diagnostics) health(w http.ResponseWriter, _ *http.Request) {
	if h.src.Plan() == nil {
		Error(w, http.StatusServiceUnavailable, "Not booted.")
		return
	}
	var failed []string
	for _, m := range h.src.Modules() {
		if m.Error != "" {
			failed = append(failed, m.Name)
		}
	}
	status := "ok"
	if len(failed) > 0 {
		status = "degraded"
	}
	JSON(w, http.StatusOK, envelope{"status": status, "failedModules": failed})
}

func (h *diagnostics) plan(w http.ResponseWriter, _ *http.Request) {
	plan := h.src.Plan()
	if plan == nil {
		Error(w, http.StatusServiceUnavailable, "Not booted.")
		return
	}
	Success(w, plan.Summary())
}

func (h *diagnostics) bindings(w http.ResponseWriter, _ *http.Request) {
	Success(w, h.src.Bindings())
}

func (h *diagnostics) binding(w http.ResponseWriter, r *http.Request) {
	name := Param(r, "name")
	for _, b := range h.src.Bindings() {
		if b.Name == name && !b.Shadowed {
			Success(w, b)
			return
		}
	}
	NotFound(w, "Unknown service: "+name)
}

func (h *diagnostics) modules(w http.ResponseWriter, _ *http.Request) {
	Success(w, h.src.Modules())
}

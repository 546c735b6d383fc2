package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ticket-bazaar/internal/apierr"
	"ticket-bazaar/internal/logger"
)

// Router registers Handlers on a chi mux. Every route gets Accept
// negotiation followed by the global middlewares, then its own.
type Router struct {
	mux    *chi.Mux
	log    *logger.Logger
	global []Middleware
}

func NewRouter(log *logger.Logger, global ...Middleware) *Router {
	rt := &Router{mux: chi.NewRouter(), log: log, global: global}
	rt.mux.Use(middleware.RealIP)
	rt.mux.Use(rt.accessLog)
	rt.mux.NotFound(Serve(func(req *Request) (any, error) {
		return nil, notFound("route", req.URL.Path)
	}, log))
	rt.mux.MethodNotAllowed(Serve(func(req *Request) (any, error) {
		return nil, apierr.MethodNotAllowed(req.Method)
	}, log))
	return rt
}

// AllowOrigins lets browser pages on origins call the API with their session
// cookie. It must be called before any route is registered.
func (rt *Router) AllowOrigins(origins ...string) {
	rt.mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// Handle registers a JSON route.
func (rt *Router) Handle(method, pattern string, h Handler, mws ...Middleware) {
	rt.HandleProducing(method, pattern, []string{jsonType}, h, mws...)
}

// HandleProducing registers a route whose successful responses have one of
// the given media types; errors are still JSON.
func (rt *Router) HandleProducing(method, pattern string, produces []string, h Handler, mws ...Middleware) {
	chain := append([]Middleware{Negotiate(produces...)}, rt.global...)
	chain = append(chain, mws...)
	rt.mux.Method(method, pattern, Serve(Chain(h, chain...), rt.log))
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

func (rt *Router) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		rt.log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(status), fmt.Sprint(time.Since(start).Round(time.Microsecond)))
	})
}

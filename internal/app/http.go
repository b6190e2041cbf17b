package app

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"chatsync/pkg/api"
	"chatsync/pkg/auth"
	"chatsync/pkg/live"
	"chatsync/pkg/telemetry"
)

// buildHandler mounts every HTTP surface: health probes, metrics, docs,
// the REST fallback and the websocket endpoint.
func (a *App) buildHandler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))

	mw := auth.NewMiddleware(
		a.auth,
		a.eff.Config.Security.RateLimit.RPS,
		a.eff.Config.Security.RateLimit.Burst,
		a.eff.Config.Security.CORS.AllowedOrigins,
	)
	api.New(a.svc, a.auth).Register(r, mw)

	ws := live.NewHandler(a.svc, a.auth, live.Options{
		MaxMessageSize: int64(a.eff.Config.Live.MaxMessageSize),
		PingInterval:   time.Duration(a.eff.Config.Live.PingInterval),
		WriteTimeout:   time.Duration(a.eff.Config.Live.WriteTimeout),
		AllowedOrigins: a.eff.Config.Security.CORS.AllowedOrigins,
	})
	r.Handle("/ws", ws).Methods(http.MethodGet)

	return telemetry.Middleware(r)
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !a.st.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	if a.sns != nil && a.sns.Degraded() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// startHTTP starts the HTTP server in a goroutine and returns a channel
// that will contain any server error.
func (a *App) startHTTP() <-chan error {
	a.srv = &http.Server{Addr: a.eff.Addr, Handler: a.buildHandler()}

	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}

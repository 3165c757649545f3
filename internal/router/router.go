package router

import (
	"net/http"
	"time"

	"clinic-appointments/internal/docs"
	"clinic-appointments/internal/domain/appointments"
	"clinic-appointments/internal/middleware"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/ports/auth"
	"clinic-appointments/internal/reconcile"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Store de citas (memory o postgres). Requerido.
	Store appointments.Store

	// Manager es opcional; sin él no se montan las rutas /reconciler.
	Manager *reconcile.Manager

	// Zona horaria de las clínicas (nil => time.Local).
	Location *time.Location

	Logger logger.Logger
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.InstanceName(docs.SwaggerInfo.InstanceName()),
	))

	svc := appointments.NewService(opts.Store, opts.Location)
	appointments.RegisterRoutes(r, svc, opts.Store, log)

	if opts.Manager != nil {
		reconcile.RegisterRoutes(r, opts.Manager)
	}

	return r
}

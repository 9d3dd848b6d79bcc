package http

import (
	"log/slog"
	"net/http"
)

type RouterConfig struct {
	Public     *PublicHandler
	Admin      *AdminHandler
	Health     *HealthHandler
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Health != nil {
		mux.HandleFunc("GET /healthz", cfg.Health.Live)
		mux.HandleFunc("GET /readyz", cfg.Health.Ready)
	}

	if cfg.Public != nil {
		mux.HandleFunc("GET /api/meeting-types/{ref}/slots", cfg.Public.ListSlots)
		mux.HandleFunc("POST /api/meeting-types/{ref}/bookings", cfg.Public.CreateBooking)
		mux.HandleFunc("GET /api/bookings/{token}", cfg.Public.GetBooking)
		mux.HandleFunc("GET /api/bookings/{token}/reschedule-slots", cfg.Public.ListRescheduleSlots)
		mux.HandleFunc("POST /api/bookings/{token}/reschedule", cfg.Public.Reschedule)
		mux.HandleFunc("POST /api/bookings/{token}/cancel", cfg.Public.Cancel)
	}

	if cfg.Admin != nil {
		admin := http.NewServeMux()
		admin.HandleFunc("GET /admin/meeting-types", cfg.Admin.ListMeetingTypes)
		admin.HandleFunc("POST /admin/meeting-types", cfg.Admin.CreateMeetingType)
		admin.HandleFunc("GET /admin/meeting-types/{id}", cfg.Admin.GetConfiguration)
		admin.HandleFunc("PUT /admin/meeting-types/{id}", cfg.Admin.SaveConfiguration)
		admin.HandleFunc("DELETE /admin/meeting-types/{id}", cfg.Admin.DeleteMeetingType)
		admin.HandleFunc("POST /admin/meeting-types/{id}/busy-pattern", cfg.Admin.RegenerateBusyPattern)
		admin.HandleFunc("GET /admin/meeting-types/{id}/diagnostics", cfg.Admin.Diagnostics)
		admin.HandleFunc("GET /admin/meeting-types/{id}/blackouts", cfg.Admin.ListBlackouts)
		admin.HandleFunc("POST /admin/meeting-types/{id}/blackouts", cfg.Admin.AddBlackouts)
		admin.HandleFunc("DELETE /admin/meeting-types/{id}/blackouts/{blackoutID}", cfg.Admin.DeleteBlackout)
		admin.HandleFunc("GET /admin/settings", cfg.Admin.GetSettings)
		admin.HandleFunc("PUT /admin/settings", cfg.Admin.SaveSettings)
		admin.HandleFunc("GET /admin/bookings/{id}", cfg.Admin.GetBooking)
		admin.HandleFunc("GET /admin/bookings/{id}/reschedule-slots", cfg.Admin.ListRescheduleSlots)
		admin.HandleFunc("POST /admin/bookings/{id}/reschedule", cfg.Admin.Reschedule)
		admin.HandleFunc("POST /admin/bookings/{id}/cancel", cfg.Admin.Cancel)
		mux.Handle("/admin/", RequireAdminIdentity(cfg.Logger)(admin))
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/lesson-scheduler/internal/application"
)

type configurationService interface {
	CreateMeetingType(ctx context.Context, admin string, input application.MeetingTypeInput) (application.MeetingType, error)
	ListMeetingTypes(ctx context.Context, admin string) ([]application.MeetingType, error)
	GetConfiguration(ctx context.Context, admin, meetingTypeID string) (application.Configuration, error)
	SaveConfiguration(ctx context.Context, admin, meetingTypeID string, input application.ConfigurationInput) (application.Configuration, error)
	DeleteMeetingType(ctx context.Context, admin, meetingTypeID string) error
	RegenerateBusyPattern(ctx context.Context, admin, meetingTypeID string) (application.MeetingType, error)
	AddBlackouts(ctx context.Context, admin, meetingTypeID string, input application.BlackoutInput) ([]application.Blackout, error)
	ListBlackouts(ctx context.Context, admin, meetingTypeID, from, to string) ([]application.Blackout, error)
	DeleteBlackout(ctx context.Context, admin, meetingTypeID, blackoutID string) error
	GetScheduleSettings(ctx context.Context, admin string) (application.ScheduleSettings, error)
	SaveScheduleSettings(ctx context.Context, admin string, input application.ScheduleSettingsInput) (application.ScheduleSettings, error)
}

// AdminHandler serves configuration and booking management for the admin
// identity set by RequireAdminIdentity.
type AdminHandler struct {
	config    configurationService
	slots     slotService
	bookings  bookingService
	responder responder
	logger    *slog.Logger
}

func NewAdminHandler(config configurationService, slots slotService, bookings bookingService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{config: config, slots: slots, bookings: bookings, responder: newResponder(logger), logger: logger}
}

func admin(r *http.Request) string {
	identity, _ := AdminIdentityFromContext(r.Context())
	return identity
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return false
	}
	return true
}

// ------------------------------ Meeting types ------------------------------

func (h *AdminHandler) ListMeetingTypes(w http.ResponseWriter, r *http.Request) {
	items, err := h.config.ListMeetingTypes(r.Context(), admin(r))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"meeting_types": toMeetingTypeDTOs(items)})
}

func (h *AdminHandler) CreateMeetingType(w http.ResponseWriter, r *http.Request) {
	var req application.MeetingTypeInput
	if !h.decode(w, r, &req) {
		return
	}
	mt, err := h.config.CreateMeetingType(r.Context(), admin(r), req)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toMeetingTypeDTO(mt))
}

func (h *AdminHandler) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.GetConfiguration(r.Context(), admin(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toConfigurationResponse(cfg))
}

func (h *AdminHandler) SaveConfiguration(w http.ResponseWriter, r *http.Request) {
	var req application.ConfigurationInput
	if !h.decode(w, r, &req) {
		return
	}
	cfg, err := h.config.SaveConfiguration(r.Context(), admin(r), r.PathValue("id"), req)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toConfigurationResponse(cfg))
}

func (h *AdminHandler) DeleteMeetingType(w http.ResponseWriter, r *http.Request) {
	if err := h.config.DeleteMeetingType(r.Context(), admin(r), r.PathValue("id")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *AdminHandler) RegenerateBusyPattern(w http.ResponseWriter, r *http.Request) {
	mt, err := h.config.RegenerateBusyPattern(r.Context(), admin(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMeetingTypeDTO(mt))
}

func (h *AdminHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	days, ok := optionalInt(query.Get("days"))
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}
	diag, err := h.slots.Diagnostics(r.Context(), admin(r), r.PathValue("id"), strings.TrimSpace(query.Get("start_date")), days)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toDiagnosticsResponse(diag))
}

// --------------------------------- Blackouts ---------------------------------

func (h *AdminHandler) ListBlackouts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items, err := h.config.ListBlackouts(r.Context(), admin(r), r.PathValue("id"),
		strings.TrimSpace(query.Get("from")), strings.TrimSpace(query.Get("to")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"blackouts": toBlackoutDTOs(items)})
}

func (h *AdminHandler) AddBlackouts(w http.ResponseWriter, r *http.Request) {
	var req application.BlackoutInput
	if !h.decode(w, r, &req) {
		return
	}
	items, err := h.config.AddBlackouts(r.Context(), admin(r), r.PathValue("id"), req)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]any{"blackouts": toBlackoutDTOs(items)})
}

func (h *AdminHandler) DeleteBlackout(w http.ResponseWriter, r *http.Request) {
	if err := h.config.DeleteBlackout(r.Context(), admin(r), r.PathValue("id"), r.PathValue("blackoutID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// --------------------------------- Settings ---------------------------------

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.config.GetScheduleSettings(r.Context(), admin(r))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSettingsDTO(settings))
}

func (h *AdminHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req application.ScheduleSettingsInput
	if !h.decode(w, r, &req) {
		return
	}
	settings, err := h.config.SaveScheduleSettings(r.Context(), admin(r), req)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSettingsDTO(settings))
}

// --------------------------------- Bookings ---------------------------------

func (h *AdminHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookings.GetBooking(r.Context(), admin(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking, false))
}

func (h *AdminHandler) ListRescheduleSlots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	listing, err := h.slots.ListRescheduleSlots(r.Context(), admin(r), r.PathValue("id"),
		strings.TrimSpace(query.Get("date")), strings.TrimSpace(query.Get("timezone")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSlotListingResponse(listing))
}

func (h *AdminHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req application.RescheduleInput
	if !h.decode(w, r, &req) {
		return
	}
	booking, err := h.bookings.RescheduleBooking(r.Context(), admin(r), r.PathValue("id"), req)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	handlerLogger(r.Context(), h.logger, "AdminHandler", "Reschedule", "booking_id", booking.ID).
		InfoContext(r.Context(), "booking moved by admin")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking, false))
}

func (h *AdminHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookings.CancelBooking(r.Context(), admin(r), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking, false))
}

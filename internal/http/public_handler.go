package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/lesson-scheduler/internal/application"
)

type slotService interface {
	ListSlots(ctx context.Context, query application.SlotQuery) (application.SlotListing, error)
	ListRescheduleSlotsByToken(ctx context.Context, token, date, displayTimezone string) (application.SlotListing, error)
	ListRescheduleSlots(ctx context.Context, admin, bookingID, date, displayTimezone string) (application.SlotListing, error)
	Diagnostics(ctx context.Context, admin, meetingTypeID, startDate string, days int) (application.Diagnostics, error)
}

type bookingService interface {
	CreateBooking(ctx context.Context, input application.CreateBookingInput) (application.Booking, error)
	GetBookingByToken(ctx context.Context, token string) (application.Booking, error)
	GetBooking(ctx context.Context, admin, bookingID string) (application.Booking, error)
	RescheduleByToken(ctx context.Context, token string, input application.RescheduleInput) (application.Booking, error)
	RescheduleBooking(ctx context.Context, admin, bookingID string, input application.RescheduleInput) (application.Booking, error)
	CancelByToken(ctx context.Context, token string) (application.Booking, error)
	CancelBooking(ctx context.Context, admin, bookingID string) (application.Booking, error)
}

// PublicHandler serves visitor endpoints. Bookings are addressed by their
// public token.
type PublicHandler struct {
	slots     slotService
	bookings  bookingService
	responder responder
	logger    *slog.Logger
}

func NewPublicHandler(slots slotService, bookings bookingService, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{slots: slots, bookings: bookings, responder: newResponder(logger), logger: logger}
}

func (h *PublicHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	days, ok := optionalInt(query.Get("days"))
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	listing, err := h.slots.ListSlots(r.Context(), application.SlotQuery{
		MeetingTypeRef:  r.PathValue("ref"),
		StartDate:       strings.TrimSpace(query.Get("start_date")),
		Days:            days,
		DisplayTimezone: strings.TrimSpace(query.Get("timezone")),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSlotListingResponse(listing))
}

func (h *PublicHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	booking, err := h.bookings.CreateBooking(r.Context(), application.CreateBookingInput{
		MeetingTypeRef: r.PathValue("ref"),
		Start:          req.Start,
		Timezone:       strings.TrimSpace(req.Timezone),
		Visitor:        req.Visitor,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "PublicHandler", "CreateBooking", "booking_id", booking.ID).
		InfoContext(r.Context(), "booking accepted")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toBookingDTO(booking, true))
}

func (h *PublicHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookings.GetBookingByToken(r.Context(), r.PathValue("token"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking, false))
}

func (h *PublicHandler) ListRescheduleSlots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	listing, err := h.slots.ListRescheduleSlotsByToken(r.Context(), r.PathValue("token"),
		strings.TrimSpace(query.Get("date")), strings.TrimSpace(query.Get("timezone")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSlotListingResponse(listing))
}

func (h *PublicHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req application.RescheduleInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	booking, err := h.bookings.RescheduleByToken(r.Context(), r.PathValue("token"), req)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking, false))
}

func (h *PublicHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookings.CancelByToken(r.Context(), r.PathValue("token"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingDTO(booking, false))
}

// optionalInt parses an optional non-negative integer query value.
func optionalInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Package http provides HTTP handlers and middleware for the lesson booking API.
//
// Public endpoints, addressed by meeting type id or slug and by booking token:
//   - GET /api/meeting-types/{ref}/slots?start_date=YYYY-MM-DD&days=N&timezone=Zone:
//     filtered slot listing grouped by date.
//   - POST /api/meeting-types/{ref}/bookings: books a slot. Body:
//     {"start","timezone","visitor":{"name","email","note"}}. The response carries
//     the public token once.
//   - GET /api/bookings/{token}, GET /api/bookings/{token}/reschedule-slots?date=&timezone=,
//     POST /api/bookings/{token}/reschedule, POST /api/bookings/{token}/cancel.
//
// Admin endpoints require the X-Admin-Identity header:
//   - GET, POST /admin/meeting-types; GET, PUT, DELETE /admin/meeting-types/{id}.
//   - POST /admin/meeting-types/{id}/busy-pattern regenerates the busy pattern.
//   - GET /admin/meeting-types/{id}/diagnostics?start_date=&days= compares raw and
//     visible slots.
//   - GET, POST /admin/meeting-types/{id}/blackouts and
//     DELETE /admin/meeting-types/{id}/blackouts/{blackoutID}.
//   - GET, PUT /admin/settings.
//   - GET /admin/bookings/{id}, GET /admin/bookings/{id}/reschedule-slots,
//     POST /admin/bookings/{id}/reschedule, POST /admin/bookings/{id}/cancel.
//
// GET /healthz and GET /readyz serve health checks. Errors use the errorResponse
// envelope with Japanese messages.
package http

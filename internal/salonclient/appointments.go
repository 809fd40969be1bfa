package salonclient

import (
	"context"
	"net/http"

	"salonfront/pkg/domain"
)

// AppointmentRequest is the create-appointment wire payload. Exactly one of
// Services and Combo is populated; the zero slice still marshals as [] so
// the backend's shape checks hold.
type AppointmentRequest struct {
	Services        []string `json:"services"`
	Combo           *string  `json:"combo"`
	AppointmentDate string   `json:"appointmentDate"`
	TimeSlot        string   `json:"timeSlot"`
	Notes           string   `json:"notes"`
}

// CreateAppointment posts a validated booking draft. The error, if any, is
// always an *APIError with a stable Kind.
func (c *Client) CreateAppointment(ctx context.Context, req AppointmentRequest, token string) (domain.Appointment, error) {
	if req.Services == nil {
		req.Services = []string{}
	}
	var appt domain.Appointment
	if err := c.doJSON(ctx, http.MethodPost, "/api/appointments", token, req, &appt); err != nil {
		return domain.Appointment{}, err
	}
	return appt, nil
}

// MyAppointments returns the authenticated subject's booking history.
func (c *Client) MyAppointments(ctx context.Context, token string) ([]domain.Appointment, error) {
	var items []domain.Appointment
	if err := c.doJSON(ctx, http.MethodGet, "/api/appointments/my", token, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

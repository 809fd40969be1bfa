package server

import (
	"context"
	"errors"

	"salonfront/internal/booking"
	"salonfront/internal/salonclient"
)

// submitAdapter satisfies booking.Submitter with the salon backend client,
// translating the classified API error into the form's failure taxonomy.
type submitAdapter struct {
	salon *salonclient.Client
}

func (a *submitAdapter) SubmitBooking(ctx context.Context, draft booking.Draft, credential string) *booking.Failure {
	req := salonclient.AppointmentRequest{
		Services:        draft.ServiceIDs,
		AppointmentDate: draft.Date.Format("2006-01-02"),
		TimeSlot:        draft.Slot,
		Notes:           draft.Notes,
	}
	if draft.ComboID != "" {
		combo := draft.ComboID
		req.Combo = &combo
	}
	if _, err := a.salon.CreateAppointment(ctx, req, credential); err != nil {
		return failureOf(err)
	}
	return nil
}

func failureOf(err error) *booking.Failure {
	var apiErr *salonclient.APIError
	if errors.As(err, &apiErr) {
		return &booking.Failure{
			Kind:    failureKind(apiErr.Kind),
			Message: apiErr.Message,
		}
	}
	return &booking.Failure{Kind: booking.FailServer}
}

func failureKind(kind salonclient.Kind) booking.FailureKind {
	switch kind {
	case salonclient.KindValidation:
		return booking.FailValidation
	case salonclient.KindAuth:
		return booking.FailAuth
	case salonclient.KindNetwork:
		return booking.FailNetwork
	default:
		return booking.FailServer
	}
}

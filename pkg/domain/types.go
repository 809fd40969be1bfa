package domain

import "time"

type Role string

const (
	RoleCustomer Role = "user"
	RoleAdmin    Role = "admin"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderUnisex Gender = "unisex"
)

// Session identifies the authenticated visitor. IssuedAt is the moment the
// credential was obtained and drives the expiry rule in internal/session.
type Session struct {
	SubjectID   string    `json:"subjectId"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	IssuedAt    time.Time `json:"issuedAt"`
}

// Authenticated reports whether the session belongs to a signed-in visitor.
func (s Session) Authenticated() bool {
	return s.SubjectID != ""
}

// Service is a single bookable salon service as returned by the backend.
type Service struct {
	ID              string  `json:"_id"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration"`
	Gender          Gender  `json:"gender"`
	Category        string  `json:"category"`
	IsActive        bool    `json:"isActive"`
}

// Combo bundles several services at a discount.
type Combo struct {
	ID              string    `json:"_id"`
	Name            string    `json:"name"`
	Services        []Service `json:"services"`
	TotalPrice      float64   `json:"totalPrice"`
	TotalDuration   int       `json:"totalDuration"`
	DiscountPercent float64   `json:"discountPercent"`
	Gender          Gender    `json:"gender"`
	IsActive        bool      `json:"isActive"`
}

// Appointment is a created booking as echoed back by the backend.
type Appointment struct {
	ID              string    `json:"_id"`
	Services        []Service `json:"services"`
	Combo           *Combo    `json:"combo,omitempty"`
	AppointmentDate string    `json:"appointmentDate"`
	TimeSlot        string    `json:"timeSlot"`
	Notes           string    `json:"notes"`
	Status          string    `json:"status,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TimeSlot is an opaque display label such as "9:00 AM". Ordering is the
// position within the sequence a catalog provider returns.
type TimeSlot string

// Preselection seeds a booking draft when a booking surface opens.
// Exactly one of ServiceID and ComboID is set.
type Preselection struct {
	ServiceID string `json:"service,omitempty"`
	ComboID   string `json:"combo,omitempty"`
}

package event

import "encoding/json"

// GuestPayload is the shape contract for guest.created / guest.updated
// events. Producers may send numeric or string ids.
type GuestPayload struct {
	ID          json.Number `json:"id" validate:"required"`
	Email       string      `json:"email" validate:"required,email"`
	Name        string      `json:"name,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	DateOfBirth string      `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Country     string      `json:"country,omitempty"`
}

// ReservationGuest carries the email that ties a reservation to a guest
// profile on the consumer side.
type ReservationGuest struct {
	Email string `json:"email" validate:"required,email"`
}

// ReservationPayload is the shape contract for reservation.created /
// reservation.updated events.
type ReservationPayload struct {
	ID         json.Number       `json:"id" validate:"required"`
	GuestID    json.Number       `json:"guest_id,omitempty"`
	RoomNumber string            `json:"room_number" validate:"required"`
	CheckIn    string            `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut   string            `json:"check_out" validate:"required,datetime=2006-01-02"`
	Status     string            `json:"status,omitempty" validate:"omitempty,oneof=booked checked_in checked_out canceled"`
	Guest      *ReservationGuest `json:"guest,omitempty"`
}

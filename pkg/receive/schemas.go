package receive

// webhookHeaders is the shape contract for the four required delivery
// headers. Minimum lengths reject obviously truncated values before any
// crypto work happens.
type webhookHeaders struct {
	Signature      string `validate:"required,min=10"`
	IdempotencyKey string `validate:"required,min=8"`
	EventType      string `validate:"required,min=3"`
	Timestamp      string `validate:"required,min=10"`
}

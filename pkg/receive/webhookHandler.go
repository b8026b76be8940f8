package receive

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zoff-tech/guest-sync/pkg/event"
	"github.com/zoff-tech/guest-sync/pkg/signature"
	"github.com/zoff-tech/guest-sync/pkg/store"
)

// Handler verifies and admits inbound webhook deliveries. The pipeline is:
// header schema, freshness, signature over the raw body, idempotency branch,
// atomic admit with the payload projection.
type Handler struct {
	secret         string
	maxSkewSeconds int
	store          store.EventStore
	logger         *zap.Logger
	validate       *validator.Validate
	now            func() time.Time
}

func NewHandler(secret string, maxSkewSeconds int, st store.EventStore, logger *zap.Logger) *Handler {
	if maxSkewSeconds <= 0 {
		maxSkewSeconds = 300
	}
	return &Handler{
		secret:         secret,
		maxSkewSeconds: maxSkewSeconds,
		store:          st,
		logger:         logger,
		validate:       validator.New(),
		now:            time.Now,
	}
}

func (h *Handler) Receive(c *gin.Context) {
	headers := webhookHeaders{
		Signature:      c.GetHeader("X-Signature"),
		IdempotencyKey: c.GetHeader("X-Idempotency-Key"),
		EventType:      c.GetHeader("X-Event-Type"),
		Timestamp:      c.GetHeader("X-Timestamp"),
	}
	if err := h.validate.Struct(&headers); err != nil {
		rejectedTotal.WithLabelValues("malformed").Inc()
		h.logger.Warn("webhook rejected: malformed headers",
			zap.String("event_type", headers.EventType),
			zap.String("idempotency_key", headers.IdempotencyKey),
		)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "malformed request"})
		return
	}

	if !h.isTimestampFresh(headers.Timestamp) {
		rejectedTotal.WithLabelValues("stale").Inc()
		h.logger.Warn("webhook rejected: timestamp skew too large",
			zap.String("idempotency_key", headers.IdempotencyKey),
			zap.String("timestamp", headers.Timestamp),
		)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "timestamp skew too large"})
		return
	}

	// The signature covers the exact bytes on the wire, so verification has
	// to see the unparsed body.
	raw, err := c.GetRawData()
	if err != nil || len(raw) == 0 {
		rejectedTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing body"})
		return
	}
	if !signature.Verify(h.secret, raw, headers.Signature) {
		rejectedTotal.WithLabelValues("invalid_signature").Inc()
		h.logger.Warn("webhook rejected: invalid signature",
			zap.String("event_type", headers.EventType),
			zap.String("idempotency_key", headers.IdempotencyKey),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid signature"})
		return
	}

	existing, err := h.store.FindEvent(c.Request.Context(), headers.IdempotencyKey)
	if err != nil {
		h.logger.Error("idempotency lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
		return
	}
	if existing != nil {
		h.finishDuplicate(c, existing, headers)
		return
	}

	var envelope event.Event
	if err := json.Unmarshal(raw, &envelope); err != nil {
		rejectedTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "malformed body"})
		return
	}

	rec := &store.ReceivedEvent{
		Type:           headers.EventType,
		IdempotencyKey: headers.IdempotencyKey,
		Timestamp:      envelope.Timestamp,
		Payload:        raw,
		Signature:      headers.Signature,
		SourceIP:       c.ClientIP(),
		ReceivedAt:     h.now(),
	}

	err = h.admit(c, rec, event.Type(headers.EventType), envelope.Payload)
	if errors.Is(err, store.ErrDuplicateEvent) {
		// A concurrent delivery of the same key won the insert. The unique
		// constraint is the arbiter; re-read and resolve replay vs conflict.
		stored, lookupErr := h.store.FindEvent(c.Request.Context(), headers.IdempotencyKey)
		if lookupErr != nil || stored == nil {
			h.logger.Error("post-conflict lookup failed", zap.Error(lookupErr))
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
			return
		}
		h.finishDuplicate(c, stored, headers)
		return
	}
	if err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			rejectedTotal.WithLabelValues("invalid_payload").Inc()
			h.logger.Warn("webhook rejected: payload schema mismatch",
				zap.String("event_type", headers.EventType),
				zap.String("idempotency_key", headers.IdempotencyKey),
				zap.Error(err),
			)
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid payload"})
			return
		}
		h.logger.Error("failed to admit event",
			zap.String("event_type", headers.EventType),
			zap.String("idempotency_key", headers.IdempotencyKey),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
		return
	}

	admittedTotal.Inc()
	h.logger.Info("event admitted",
		zap.String("event_type", headers.EventType),
		zap.String("idempotency_key", headers.IdempotencyKey),
	)
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "received": true})
}

// admit records the event and applies the projection for its type. Unknown
// types are recorded and logged, never rejected; producers may ship new
// types before consumers learn them.
func (h *Handler) admit(c *gin.Context, rec *store.ReceivedEvent, t event.Type, payload json.RawMessage) error {
	ctx := c.Request.Context()

	switch t {
	case event.TypeGuestCreated, event.TypeGuestUpdated:
		var p event.GuestPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		if err := h.validate.Struct(&p); err != nil {
			return err
		}
		return h.store.AdmitGuest(ctx, rec, &p)

	case event.TypeReservationCreated, event.TypeReservationUpdated:
		var p event.ReservationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		if err := h.validate.Struct(&p); err != nil {
			return err
		}
		if p.Guest == nil || p.Guest.Email == "" {
			// Nothing to tie the reservation to a profile; keep the audit row.
			h.logger.Warn("reservation event without guest email, recording only",
				zap.String("idempotency_key", rec.IdempotencyKey),
			)
			return h.store.AdmitRecordOnly(ctx, rec)
		}
		return h.store.AdmitReservation(ctx, rec, &p)

	case event.TypeGuestDeleted, event.TypeReservationDeleted:
		h.logger.Info("deletion event recorded for audit",
			zap.String("event_type", string(t)),
			zap.String("idempotency_key", rec.IdempotencyKey),
		)
		return h.store.AdmitRecordOnly(ctx, rec)

	default:
		h.logger.Warn("unknown event type, recording only",
			zap.String("event_type", string(t)),
			zap.String("idempotency_key", rec.IdempotencyKey),
		)
		return h.store.AdmitRecordOnly(ctx, rec)
	}
}

// finishDuplicate resolves a repeated idempotency key: same signature is a
// benign replay, a different one means the key was reused for different
// content and must surface as a conflict, distinguishable from every other
// rejection.
func (h *Handler) finishDuplicate(c *gin.Context, stored *store.ReceivedEvent, headers webhookHeaders) {
	if stored.Signature == headers.Signature {
		replayedTotal.Inc()
		h.logger.Info("replay accepted",
			zap.String("event_type", headers.EventType),
			zap.String("idempotency_key", headers.IdempotencyKey),
		)
		c.JSON(http.StatusOK, gin.H{"ok": true, "replay": true})
		return
	}
	conflictsTotal.Inc()
	h.logger.Error("idempotency key conflict",
		zap.String("event_type", headers.EventType),
		zap.String("idempotency_key", headers.IdempotencyKey),
	)
	c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "idempotency key conflict (different payload)"})
}

func (h *Handler) isTimestampFresh(tsStr string) bool {
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return false
	}
	skewMs := h.now().UnixMilli() - ts
	if skewMs < 0 {
		skewMs = -skewMs
	}
	return skewMs <= int64(h.maxSkewSeconds)*1000
}

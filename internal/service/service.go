// Package service implements the registration form controller: event
// loading, attendee blocks, submission to the backend and the coupon flow.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-form/internal/mask"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotConfirmed is returned when a submission was not confirmed.
	ErrNotConfirmed = errors.New("submission not confirmed")

	// ErrFormLocked is returned for changes to an already submitted form.
	ErrFormLocked = errors.New("form already submitted")

	// ErrCommunication wraps transport and decoding failures.
	ErrCommunication = errors.New("backend communication failed")

	// ErrRejected is returned when the backend answers with a falsy status.
	ErrRejected = errors.New("backend rejected the data")

	// ErrCouponInvalid is returned when the backend does not accept a coupon.
	ErrCouponInvalid = errors.New("coupon not accepted")

	// ErrNothingToRetry is returned when no attendee is pending.
	ErrNothingToRetry = errors.New("no failed attendees to resend")
)

// API is the backend the form talks to.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// SessionStore persists form sessions.
type SessionStore interface {
	Create(ctx context.Context, s *model.FormSession) error
	Get(ctx context.Context, id string) (*model.FormSession, error)
	Save(ctx context.Context, s *model.FormSession) error
}

// SessionLocker is implemented by stores shared between processes. Its lock
// is taken after the in-process one and held for the whole operation; the
// returned context must be used for the store calls made under it.
type SessionLocker interface {
	Lock(ctx context.Context, id string) (context.Context, func(), error)
}

// Draft carries the values currently typed on the page.
type Draft struct {
	Company   model.CompanyForm
	Attendees []model.AttendeeBlock
}

// RegistrationService drives registration form sessions. Operations on one
// session never interleave; once started they run to completion even if the
// caller goes away.
type RegistrationService struct {
	api      API
	sessions SessionStore
	logger   *zap.Logger
	locks    *sessionLocks
	now      func() time.Time
}

// NewRegistrationService constructs a RegistrationService with its dependencies.
func NewRegistrationService(api API, sessions SessionStore, logger *zap.Logger) *RegistrationService {
	return &RegistrationService{
		api:      api,
		sessions: sessions,
		logger:   logger,
		locks:    newSessionLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start opens a form session for eventID and loads the event's attendee
// limit. A failed event lookup is logged and leaves the limit at 1.
func (s *RegistrationService) Start(ctx context.Context, eventID int64) (*model.FormSession, error) {
	if eventID <= 0 {
		return nil, fmt.Errorf("event id must be positive")
	}
	ctx = context.WithoutCancel(ctx)

	now := s.now()
	sess := &model.FormSession{
		ID:                uuid.New().String(),
		EventID:           eventID,
		RequiredAttendees: 1,
		Status:            model.StatusIdle,
		Attendees:         []model.AttendeeBlock{},
		ShowNormalButton:  true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.loadEvent(ctx, sess)

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *RegistrationService) loadEvent(ctx context.Context, sess *model.FormSession) {
	var resp model.EventResponse
	if err := s.api.Get(ctx, eventPath(sess.EventID), &resp); err != nil {
		observability.EventLoads.WithLabelValues(observability.OutcomeFailed).Inc()
		s.logger.Error("load event",
			zap.String("session_id", sess.ID),
			zap.Int64("event_id", sess.EventID),
			zap.Error(err),
		)
		return
	}
	observability.EventLoads.WithLabelValues(observability.OutcomeSuccess).Inc()

	ev := resp.Event()
	if ev == nil {
		s.logger.Warn("event response without event", zap.Int64("event_id", sess.EventID))
		return
	}
	sess.RequiredAttendees = ev.Required()
	sess.ParticipantsMessage = participantsMessage(sess.RequiredAttendees)
}

// Session returns the current state of a session.
func (s *RegistrationService) Session(ctx context.Context, id string) (*model.FormSession, error) {
	return s.sessions.Get(ctx, id)
}

// TakeAlert returns the session together with its pending alert and clears
// the alert so it is shown once.
func (s *RegistrationService) TakeAlert(ctx context.Context, id string) (*model.FormSession, string, error) {
	ctx, unlock, err := s.acquire(ctx, id)
	if err != nil {
		return nil, "", err
	}
	defer unlock()

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	alert := sess.Alert
	if alert == "" {
		return sess, "", nil
	}
	sess.Alert = ""
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("save session: %w", err)
	}
	return sess, alert, nil
}

// AddAttendee appends an empty attendee block unless the event limit is
// already reached.
func (s *RegistrationService) AddAttendee(ctx context.Context, id string, d Draft) (*model.FormSession, error) {
	return s.withSession(ctx, id, func(sess *model.FormSession) error {
		if sess.Disabled() {
			sess.Alert = MsgFormLocked
			return ErrFormLocked
		}
		applyDraft(sess, d)

		if !sess.CanAddAttendee() {
			err := invalid("%s", attendeeLimitMessage(sess.RequiredAttendees))
			sess.Alert = err.Message
			return err
		}
		sess.Attendees = append(sess.Attendees, model.NewAttendeeBlock())
		return nil
	})
}

// Submit validates the form and sends the company followed by each attendee,
// one request at a time in block order. Validation failures and a rejected
// company leave the form editable. Attendees that fail to send are kept in
// FailedAttendees and the form is still considered submitted, because the
// company already exists on the backend.
func (s *RegistrationService) Submit(ctx context.Context, id string, d Draft, confirmed bool) (*model.FormSession, error) {
	ctx = context.WithoutCancel(ctx)

	return s.withSession(ctx, id, func(sess *model.FormSession) error {
		if sess.Disabled() {
			sess.Alert = MsgFormLocked
			return ErrFormLocked
		}
		applyDraft(sess, d)

		if !confirmed {
			observability.Submissions.WithLabelValues(observability.OutcomeCancelled).Inc()
			sess.Alert = MsgConfirmSubmission
			return ErrNotConfirmed
		}

		company := BuildCompany(sess.Company, sess.EventID, sess.Coupon)
		if err := ValidateCompany(company); err != nil {
			return s.reject(sess, err)
		}
		attendees, err := BuildAttendees(sess.Attendees, sess.RequiredAttendees)
		if err != nil {
			return s.reject(sess, err)
		}

		var resp model.CompanyResponse
		if err := s.api.Post(ctx, "/empresa", company, &resp); err != nil {
			observability.Submissions.WithLabelValues(observability.OutcomeFailed).Inc()
			s.logger.Error("submit company", zap.String("session_id", sess.ID), zap.Error(err))
			sess.Alert = MsgCommunicationFailed
			return fmt.Errorf("%w: %w", ErrCommunication, err)
		}
		if !resp.Status {
			observability.Submissions.WithLabelValues(observability.OutcomeFailed).Inc()
			s.logger.Warn("company rejected", zap.String("session_id", sess.ID))
			sess.Alert = MsgSendFailed
			return ErrRejected
		}

		if companyID, ok := resp.CompanyID(); ok {
			sess.CompanyID = companyID.Ptr()
		} else {
			s.logger.Warn("company response without id", zap.String("session_id", sess.ID))
		}
		for i := range attendees {
			attendees[i].CompanyID = sess.CompanyID
		}

		sess.FailedAttendees = s.postAttendees(ctx, sess.ID, attendees)
		sess.Status = model.StatusSubmitted
		sess.ShowCouponSection = true
		sess.ShowPayment = true
		s.loadPaymentButton(ctx, sess)

		if len(sess.FailedAttendees) > 0 {
			observability.Submissions.WithLabelValues(observability.OutcomePartial).Inc()
			sess.Alert = partialMessage(sess.FailedAttendees)
		} else {
			observability.Submissions.WithLabelValues(observability.OutcomeSuccess).Inc()
			sess.Alert = MsgSubmitted
		}
		return nil
	})
}

// RetryFailedAttendees resends the attendees that failed during Submit.
// Each pending attendee gets one more attempt.
func (s *RegistrationService) RetryFailedAttendees(ctx context.Context, id string) (*model.FormSession, error) {
	ctx = context.WithoutCancel(ctx)

	return s.withSession(ctx, id, func(sess *model.FormSession) error {
		if !sess.Disabled() || len(sess.FailedAttendees) == 0 {
			return ErrNothingToRetry
		}

		sess.FailedAttendees = s.postAttendees(ctx, sess.ID, sess.FailedAttendees)
		if len(sess.FailedAttendees) > 0 {
			sess.Alert = partialMessage(sess.FailedAttendees)
			return nil
		}
		sess.Alert = MsgSubmitted
		return nil
	})
}

// ValidateCoupon asks the backend about code and swaps the payment button
// accordingly. A communication failure leaves the coupon state untouched.
func (s *RegistrationService) ValidateCoupon(ctx context.Context, id, code string) (*model.FormSession, error) {
	ctx = context.WithoutCancel(ctx)

	return s.withSession(ctx, id, func(sess *model.FormSession) error {
		code = strings.TrimSpace(code)
		sess.CouponCode = code

		var resp model.CouponResponse
		err := s.api.Post(ctx, "/cupom/validar", model.CouponRequest{Code: code, EventID: sess.EventID}, &resp)
		if err == nil && resp.Status && resp.Cupom == nil {
			err = errors.New("coupon response without coupon")
		}
		if err != nil {
			observability.CouponValidations.WithLabelValues(observability.OutcomeFailed).Inc()
			s.logger.Error("validate coupon", zap.String("session_id", sess.ID), zap.Error(err))
			sess.Alert = MsgCouponFailed
			return fmt.Errorf("%w: %w", ErrCommunication, err)
		}

		if resp.Status {
			observability.CouponValidations.WithLabelValues(observability.OutcomeValid).Inc()
			sess.Coupon = resp.Cupom
			sess.CouponMessage = fmt.Sprintf("✅ Cupom válido! Desconto: %s", resp.Cupom.Discount)
			sess.CouponMessageColor = model.ColorSuccess
			sess.ShowNormalButton = false
			sess.CouponButtonHTML = resp.Cupom.PaymentButtonHTML
			sess.ShowCouponButton = true
			return nil
		}

		observability.CouponValidations.WithLabelValues(observability.OutcomeInvalid).Inc()
		sess.Coupon = nil
		sess.CouponMessage = MsgCouponInvalid
		sess.CouponMessageColor = model.ColorError
		sess.ShowNormalButton = true
		sess.ShowCouponButton = false
		sess.CouponButtonHTML = ""
		return ErrCouponInvalid
	})
}

// withSession runs fn on the locked session and saves the result, whether
// fn failed or not, since failures still leave an alert behind.
func (s *RegistrationService) withSession(ctx context.Context, id string, fn func(*model.FormSession) error) (*model.FormSession, error) {
	ctx, unlock, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	opErr := fn(sess)
	sess.UpdatedAt = s.now()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, opErr
}

// acquire locks the session in this process and, when the store supports
// it, across processes.
func (s *RegistrationService) acquire(ctx context.Context, id string) (context.Context, func(), error) {
	unlock := s.locks.lock(id)
	locker, ok := s.sessions.(SessionLocker)
	if !ok {
		return ctx, unlock, nil
	}

	lockedCtx, release, err := locker.Lock(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, fmt.Errorf("lock session %s: %w", id, err)
	}
	return lockedCtx, func() {
		release()
		unlock()
	}, nil
}

func (s *RegistrationService) reject(sess *model.FormSession, err error) error {
	observability.Submissions.WithLabelValues(observability.OutcomeRejected).Inc()
	var verr *ValidationError
	if errors.As(err, &verr) {
		sess.Alert = verr.Message
	}
	return err
}

// postAttendees sends each record sequentially and returns those that failed.
func (s *RegistrationService) postAttendees(ctx context.Context, sessionID string, attendees []model.AttendeeRecord) []model.AttendeeRecord {
	var failed []model.AttendeeRecord
	for _, a := range attendees {
		var resp model.StatusResponse
		err := s.api.Post(ctx, "/participante", a, &resp)
		if err == nil && !resp.Status {
			err = ErrRejected
		}
		if err != nil {
			observability.AttendeePosts.WithLabelValues(observability.OutcomeFailed).Inc()
			s.logger.Error("submit attendee",
				zap.String("session_id", sessionID),
				zap.String("attendee", a.Name),
				zap.Error(err),
			)
			failed = append(failed, a)
			continue
		}
		observability.AttendeePosts.WithLabelValues(observability.OutcomeSuccess).Inc()
	}
	return failed
}

func (s *RegistrationService) loadPaymentButton(ctx context.Context, sess *model.FormSession) {
	var resp model.EventResponse
	if err := s.api.Get(ctx, eventPath(sess.EventID), &resp); err != nil {
		observability.EventLoads.WithLabelValues(observability.OutcomeFailed).Inc()
		s.logger.Error("reload event for payment button", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	observability.EventLoads.WithLabelValues(observability.OutcomeSuccess).Inc()
	if ev := resp.Event(); ev != nil {
		sess.NormalButtonHTML = ev.PaymentButtonHTML
	}
}

func applyDraft(sess *model.FormSession, d Draft) {
	if sess.Disabled() {
		return
	}
	c := d.Company
	c.TaxIDPersonal = mask.CPF(c.TaxIDPersonal)
	c.TaxIDBusiness = mask.CNPJ(c.TaxIDBusiness)
	c.Phone = mask.Phone(c.Phone)
	sess.Company = c

	for i := range sess.Attendees {
		if i >= len(d.Attendees) {
			break
		}
		b := d.Attendees[i]
		b.Phone = mask.Phone(b.Phone)
		b.Gender = model.NormalizeGender(b.Gender)
		sess.Attendees[i] = b
	}
}

func partialMessage(failed []model.AttendeeRecord) string {
	names := make([]string, len(failed))
	for i, a := range failed {
		names[i] = a.Name
	}
	return fmt.Sprintf("⚠️ Dados da empresa enviados, mas não foi possível cadastrar: %s. Reenvie os participantes pendentes.",
		strings.Join(names, ", "))
}

func eventPath(eventID int64) string {
	return fmt.Sprintf("/evento/%d", eventID)
}

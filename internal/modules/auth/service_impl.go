package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

type service struct {
	backend  Backend
	flows    FlowStore
	sessions *Sessions
	landing  string
}

// NewService creates a new auth service. landing is the route reported
// after a successful login.
func NewService(backend Backend, flows FlowStore, sessions *Sessions, landing string) Service {
	return &service{backend: backend, flows: flows, sessions: sessions, landing: landing}
}

func (s *service) StartFlow(ctx context.Context) (*Flow, error) {
	f := newFlow()
	if err := s.flows.Save(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *service) GetFlow(ctx context.Context, flowID string) (*Flow, error) {
	id, err := uuid.Parse(flowID)
	if err != nil {
		return nil, ErrFlowNotFound
	}
	return s.flows.Get(ctx, id)
}

func (s *service) SubmitPhone(ctx context.Context, flowID, phone string) (*Flow, error) {
	f, err := s.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if err := f.expect(StepPhoneEntry); err != nil {
		return f, err
	}
	phone = strings.TrimSpace(phone)
	if err := validatePhone(phone); err != nil {
		return f, err
	}

	resp, err := s.backend.StartAuth(ctx, phone)
	if err != nil {
		return s.fail(ctx, f, err)
	}

	switch resp.Action {
	case pharmaapi.ActionVerifyOTP:
		err = f.transition(StepOTPEntry)
		f.OTPDisplayed = resp.OTPDisplayed
		f.FailedAttempts = 0
	case pharmaapi.ActionLogin:
		err = f.transition(StepLoginReady)
	default:
		err = fmt.Errorf("unexpected auth action %q", resp.Action)
	}
	if err != nil {
		return f, err
	}
	f.Phone = phone
	f.Message = resp.Message
	return f, s.flows.Save(ctx, f)
}

func (s *service) SubmitOTP(ctx context.Context, flowID, code string) (*Flow, error) {
	f, err := s.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if err := f.expect(StepOTPEntry); err != nil {
		return f, err
	}
	code = strings.TrimSpace(code)
	if err := validateOTP(code); err != nil {
		return f, err
	}

	resp, err := s.backend.VerifyOTP(ctx, f.Phone, code)
	if err != nil {
		var rej *pharmaapi.RejectionError
		if !errors.As(err, &rej) {
			return s.fail(ctx, f, err)
		}
		f.FailedAttempts++
		f.Message = rej.Detail
		if f.FailedAttempts >= MaxOTPFailures || retryLimitReached(rej.Status, rej.Detail) {
			if rerr := f.restart(true); rerr != nil {
				return f, rerr
			}
			f.Message = rej.Detail
		}
		if serr := s.flows.Save(ctx, f); serr != nil {
			return f, serr
		}
		return f, err
	}

	if err := f.transition(StepSetPassword); err != nil {
		return f, err
	}
	f.TempToken = resp.TempToken
	f.OTPDisplayed = ""
	f.Message = resp.Message
	return f, s.flows.Save(ctx, f)
}

func (s *service) SubmitPassword(ctx context.Context, flowID, password, confirm string) (*Flow, error) {
	f, err := s.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if err := f.expect(StepSetPassword); err != nil {
		return f, err
	}
	if err := validatePassword(password, confirm); err != nil {
		return f, err
	}

	resp, err := s.backend.SetPassword(ctx, f.Phone, password, f.TempToken)
	if err != nil {
		return s.fail(ctx, f, err)
	}
	if err := f.transition(StepLoginReady); err != nil {
		return f, err
	}
	f.TempToken = ""
	f.Message = resp.Message
	return f, s.flows.Save(ctx, f)
}

func (s *service) Login(ctx context.Context, flowID, phone, password string) (*LoginResult, error) {
	f, err := s.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if err := f.expect(StepLoginReady); err != nil {
		return nil, err
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		phone = f.Phone
	}
	if err := validatePhone(phone); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, &ValidationError{Field: "password", Message: "password is required"}
	}

	resp, err := s.backend.Login(ctx, phone, password)
	if err != nil {
		_, ferr := s.fail(ctx, f, err)
		return nil, ferr
	}

	user := pharmaapi.User{Phone: phone}
	if me, err := s.backend.Me(ctx, resp.AccessToken); err != nil {
		log.Printf("auth: could not load profile after login: %v", err)
	} else {
		user = *me
	}

	sess, err := s.sessions.Create(resp.AccessToken, user)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := s.flows.Delete(ctx, f.ID); err != nil {
		log.Printf("auth: could not delete finished flow %s: %v", f.ID, err)
	}
	return &LoginResult{Session: sess, Redirect: s.landing}, nil
}

func (s *service) ForgotPassword(ctx context.Context, flowID string) (*Flow, error) {
	f, err := s.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if err := f.expect(StepLoginReady); err != nil {
		return f, err
	}
	if err := f.restart(false); err != nil {
		return f, err
	}
	f.Message = ""
	return f, s.flows.Save(ctx, f)
}

func (s *service) Back(ctx context.Context, flowID string) (*Flow, error) {
	f, err := s.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if f.Step != StepOTPEntry && f.Step != StepSetPassword {
		return f, fmt.Errorf("%w: back is only available during OTP or password entry", ErrWrongStep)
	}
	if err := f.restart(true); err != nil {
		return f, err
	}
	f.Message = ""
	return f, s.flows.Save(ctx, f)
}

func (s *service) CurrentUser(ctx context.Context, sessionID string) (*pharmaapi.User, error) {
	var user *pharmaapi.User
	err := s.sessions.WithToken(ctx, sessionID, func(token string) error {
		var err error
		user, err = s.backend.Me(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.sessions.SetUser(sessionID, *user)
	return user, nil
}

func (s *service) Logout(ctx context.Context, sessionID string) error {
	s.sessions.Purge(sessionID)
	return nil
}

// fail records a backend failure on the flow, which stays in its step.
func (s *service) fail(ctx context.Context, f *Flow, err error) (*Flow, error) {
	f.Message = pharmaapi.Detail(err)
	if serr := s.flows.Save(ctx, f); serr != nil {
		log.Printf("auth: could not save flow %s: %v", f.ID, serr)
	}
	return f, err
}

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/georgemunganga/pharma-gateway/internal/validation"
)

// Step is a position in the phone registration and login flow.
type Step string

const (
	StepPhoneEntry  Step = "PHONE_ENTRY"
	StepOTPEntry    Step = "OTP_ENTRY"
	StepSetPassword Step = "SET_PASSWORD"
	StepLoginReady  Step = "LOGIN_READY"
)

// validTransitions defines the allowed step state machine.
var validTransitions = map[Step][]Step{
	StepPhoneEntry:  {StepOTPEntry, StepLoginReady},
	StepOTPEntry:    {StepSetPassword, StepPhoneEntry},
	StepSetPassword: {StepLoginReady, StepPhoneEntry},
	StepLoginReady:  {StepPhoneEntry},
}

// MaxOTPFailures is the number of rejected codes after which the flow
// starts over.
const MaxOTPFailures = 3

const minPasswordLen = 6

var (
	ErrFlowNotFound = errors.New("auth flow not found")
	ErrWrongStep    = errors.New("action not allowed in current step")
)

// ValidationError is a client-side input failure. No backend call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// Flow is one visitor's progress through registration and login. The
// temporary token never leaves the gateway.
type Flow struct {
	ID             uuid.UUID `json:"id"`
	Step           Step      `json:"step"`
	Phone          string    `json:"phone,omitempty"`
	OTPDisplayed   string    `json:"otp_displayed,omitempty"`
	TempToken      string    `json:"-"`
	FailedAttempts int       `json:"failed_attempts"`
	Message        string    `json:"message,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newFlow() *Flow {
	return &Flow{ID: uuid.New(), Step: StepPhoneEntry, UpdatedAt: time.Now().UTC()}
}

func (f *Flow) transition(to Step) error {
	for _, allowed := range validTransitions[f.Step] {
		if allowed == to {
			f.Step = to
			f.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move from %s to %s", ErrWrongStep, f.Step, to)
}

func (f *Flow) expect(step Step) error {
	if f.Step != step {
		return fmt.Errorf("%w: flow is in %s, expected %s", ErrWrongStep, f.Step, step)
	}
	return nil
}

// restart returns to phone entry, dropping OTP and temp-token state.
func (f *Flow) restart(keepPhone bool) error {
	if err := f.transition(StepPhoneEntry); err != nil {
		return err
	}
	f.OTPDisplayed = ""
	f.TempToken = ""
	f.FailedAttempts = 0
	if !keepPhone {
		f.Phone = ""
	}
	return nil
}

type phoneInput struct {
	Phone string `json:"phone" validate:"required,number,min=10,max=11"`
}

type otpInput struct {
	Code string `json:"otp_code" validate:"required,number,len=6"`
}

type passwordInput struct {
	Password string `json:"password" validate:"min=6"`
	Confirm  string `json:"confirm_password" validate:"eqfield=Password"`
}

var fieldMessages = map[string]string{
	"phone":            "phone number must be 10 or 11 digits",
	"otp_code":         "OTP must be exactly 6 digits",
	"password":         fmt.Sprintf("password must be at least %d characters", minPasswordLen),
	"confirm_password": "passwords do not match",
}

// check validates in and reports the first failing field.
func check(in interface{}) error {
	err := validation.Struct(in)
	if err == nil {
		return nil
	}
	field, _, ok := validation.FirstField(err)
	if !ok {
		return err
	}
	return &ValidationError{Field: field, Message: fieldMessages[field]}
}

func validatePhone(phone string) error { return check(phoneInput{Phone: phone}) }

func validateOTP(code string) error { return check(otpInput{Code: code}) }

func validatePassword(password, confirm string) error {
	return check(passwordInput{Password: password, Confirm: confirm})
}

// retryLimitReached reports whether a rejection detail says the OTP
// attempt limit was exceeded.
func retryLimitReached(status int, detail string) bool {
	if status == 429 {
		return true
	}
	d := strings.ToLower(detail)
	for _, marker := range []string{"too many", "exceeded", "quá 3 lần"} {
		if strings.Contains(d, marker) {
			return true
		}
	}
	return false
}

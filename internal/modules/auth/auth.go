package auth

import (
	"context"

	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

// Service defines the registration, login and session business logic.
type Service interface {
	StartFlow(ctx context.Context) (*Flow, error)
	GetFlow(ctx context.Context, flowID string) (*Flow, error)

	// SubmitPhone asks the backend whether the phone needs OTP
	// verification or already has an account.
	SubmitPhone(ctx context.Context, flowID, phone string) (*Flow, error)
	SubmitOTP(ctx context.Context, flowID, code string) (*Flow, error)
	SubmitPassword(ctx context.Context, flowID, password, confirm string) (*Flow, error)
	Login(ctx context.Context, flowID, phone, password string) (*LoginResult, error)

	// ForgotPassword restarts a login-ready flow without a phone prefill.
	ForgotPassword(ctx context.Context, flowID string) (*Flow, error)
	// Back abandons OTP or password entry and returns to phone entry.
	Back(ctx context.Context, flowID string) (*Flow, error)

	CurrentUser(ctx context.Context, sessionID string) (*pharmaapi.User, error)
	Logout(ctx context.Context, sessionID string) error
}

// Backend is the slice of the backend client the auth flow calls.
type Backend interface {
	StartAuth(ctx context.Context, phone string) (*pharmaapi.StartAuthResponse, error)
	VerifyOTP(ctx context.Context, phone, code string) (*pharmaapi.VerifyOTPResponse, error)
	SetPassword(ctx context.Context, phone, password, tempToken string) (*pharmaapi.MessageResponse, error)
	Login(ctx context.Context, phone, password string) (*pharmaapi.LoginResponse, error)
	Me(ctx context.Context, token string) (*pharmaapi.User, error)
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Session  *Session `json:"session"`
	Redirect string   `json:"redirect"`
}

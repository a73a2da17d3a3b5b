package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Gateway is the external payment provider.  It issues a hosted checkout
// for a transaction reference and later reports whether that reference was
// paid.
type Gateway interface {
	Initialize(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	Verify(ctx context.Context, txRef string) (*Verification, error)
}

// CheckoutRequest describes one payment attempt.
type CheckoutRequest struct {
	AmountCents int64
	Currency    string
	Email       string
	FirstName   string
	LastName    string
	TxRef       string
	CallbackURL string
	ReturnURL   string
	Title       string
	Description string
}

// Checkout is the gateway's answer to Initialize.
type Checkout struct {
	CheckoutURL string
	Raw         json.RawMessage
}

// Verification is a successful verify answer.  AmountCents is what the
// provider actually settled.
type Verification struct {
	AmountCents int64
	Currency    string
	Status      string
	Raw         json.RawMessage
}

// ErrGatewayUnreachable wraps network failures and timeouts talking to the
// provider.
var ErrGatewayUnreachable = errors.New("payment gateway unreachable")

// ErrGatewayRejected is matched by every RejectedError.
var ErrGatewayRejected = errors.New("payment gateway rejected the transaction")

// RejectedError is returned when the provider answered but declined or
// failed the transaction.  Payload is the provider's raw response.
type RejectedError struct {
	StatusCode int
	Message    string
	Payload    json.RawMessage
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payment gateway rejected (status=%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("payment gateway rejected (status=%d)", e.StatusCode)
}

func (e *RejectedError) Is(target error) bool { return target == ErrGatewayRejected }

// FormatAmount renders cents as a decimal string ("450.00").
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// Amount decodes a provider amount sent either as a JSON number or as a
// quoted decimal string, keeping it in cents.
type Amount int64

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("amount %q: %w", s, err)
	}
	*a = Amount(math.Round(f * 100))
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) { return json.Marshal(FormatAmount(int64(a))) }

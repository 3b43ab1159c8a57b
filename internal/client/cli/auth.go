package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authbridge/internal/client/client"
	"github.com/dmitrijs2005/authbridge/internal/client/services"
	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/cryptox"
	"github.com/dmitrijs2005/authbridge/internal/identity"
)

// getSimpleText and getSecret are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getSecret = GetSecret

var errPinMismatch = errors.New("pins do not match")

// LoginEmail asks for an email address, sends it a code and signs in with
// the code the user types back.
func (a *App) LoginEmail(ctx context.Context) error {
	return a.loginOTP(ctx, "Enter email", identity.ParseEmail)
}

// LoginPhone is LoginEmail for Nepali mobile numbers.
func (a *App) LoginPhone(ctx context.Context) error {
	return a.loginOTP(ctx, "Enter phone number (98XXXXXXXX)", identity.ParsePhone)
}

func (a *App) loginOTP(ctx context.Context, prompt string, parse func(string) (identity.Identifier, error)) error {
	raw, err := getSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return err
	}
	id, err := parse(raw)
	if err != nil {
		return report(err)
	}

	if err := a.authService.SendCode(ctx, id); err != nil {
		return report(err)
	}
	printlnFn("Code sent to", id.Value)

	code, err := getSimpleText(a.reader, "Enter the code", a.out)
	if err != nil {
		return err
	}
	user, err := a.authService.VerifyCode(ctx, id, strings.TrimSpace(code))
	if err != nil {
		return report(err)
	}

	name := id.Value
	if user != nil && user.ID != "" {
		name = fmt.Sprintf("%s (%s)", id.Value, user.ID)
	}
	printlnFn("Signed in as", name)
	return nil
}

// SetPin reads a new PIN twice and registers it for this device.
func (a *App) SetPin(ctx context.Context) error {
	pin, err := getSecret(a.out, "Enter new PIN (4-8 digits)")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pin)

	confirm, err := getSecret(a.out, "Repeat PIN")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pin, confirm) {
		return report(errPinMismatch)
	}

	if err := a.authService.SetPIN(ctx, string(pin)); err != nil {
		return report(err)
	}
	printlnFn("PIN set. Use 'unlock' to sign in with it.")
	return nil
}

// Unlock signs in with the device PIN.
func (a *App) Unlock(ctx context.Context) error {
	pin, err := getSecret(a.out, "Enter PIN")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pin)

	if err := a.authService.Unlock(ctx, string(pin)); err != nil {
		return report(err)
	}
	printlnFn("Unlocked")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.authService.Status(ctx)
	if err != nil {
		return report(err)
	}

	if st.Session != nil {
		printlnFn("Local session: user", st.Session.UserID)
		if !st.Session.ExpiresAt.IsZero() {
			printlnFn("Expires at:", st.Session.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		}
	} else {
		printlnFn("Local session: none")
	}

	switch {
	case !st.ServerReachable:
		printlnFn("Server: unreachable")
	case st.ServerAuthenticated:
		printlnFn("Server: signed in")
	default:
		printlnFn("Server: signed out")
	}

	if st.HasPin {
		printlnFn("PIN: set on this device")
	} else {
		printlnFn("PIN: not set")
	}
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	u, err := a.authService.Me(ctx)
	if err != nil {
		return report(err)
	}
	printlnFn("User:", u.ID)
	if u.Email != "" {
		printlnFn("Email:", u.Email)
	}
	if u.Phone != "" {
		printlnFn("Phone:", u.Phone)
	}
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if err := a.authService.Refresh(ctx); err != nil {
		return report(err)
	}
	printlnFn("Session refreshed")
	return nil
}

// Logout ends the session locally and on the server. The device PIN stays.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return report(err)
	}
	printlnFn("Signed out")
	return nil
}

// Forget signs out and removes this device's PIN and remembered user.
func (a *App) Forget(ctx context.Context) error {
	if err := a.authService.Forget(ctx); err != nil {
		return report(err)
	}
	printlnFn("Device forgotten")
	return nil
}

// report prints a user-facing line for err and returns it.
func report(err error) error {
	printlnFn("Error:", describe(err))
	return err
}

func describe(err error) string {
	switch {
	case errors.Is(err, client.ErrUnavailable):
		return "server unavailable, try again later"
	case errors.Is(err, client.ErrUnauthorized):
		return "not signed in on the server"
	case errors.Is(err, services.ErrInvalidCode):
		return "invalid or expired code"
	case errors.Is(err, cryptox.ErrWrongPin):
		return "wrong PIN"
	case errors.Is(err, cryptox.ErrInvalidPin):
		return "PIN must be 4 to 8 digits"
	}

	switch client.CodeOf(err) {
	case "rate_limited":
		return "too many codes requested, wait a few minutes"
	case "too_many_attempts":
		return "too many attempts, request a new code"
	case "invalid_credentials", "no_pin_row":
		return "PIN sign-in failed, sign in with a code and set the PIN again"
	case "no_salt":
		return "PIN is not fully set up, set it again"
	}
	return err.Error()
}

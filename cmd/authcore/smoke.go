package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rutapp/authcore"
	"go.uber.org/zap"
)

const smokePassword = "smoke-password-1"

// runSmoke walks one account through every use case that needs no user
// interaction and stops at the first failure.
func runSmoke(ctx context.Context, cfg envConfig, lg *zap.Logger) error {
	rt, err := newRuntime(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer rt.Close()
	engine := rt.engine

	email := "smoke-" + uuid.NewString()[:8] + "@example.com"
	step := func(name string, fn func() error) error {
		start := time.Now()
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Printf("ok   %-20s %s\n", name, time.Since(start).Round(time.Millisecond))
		return nil
	}

	var (
		reg   *authcore.RegisterResult
		login *authcore.LoginResult
		pair  *authcore.TokenPair
	)
	steps := []struct {
		name string
		fn   func() error
	}{
		{"register", func() (err error) {
			reg, err = engine.Register(ctx, authcore.RegisterRequest{
				Email:           email,
				Password:        smokePassword,
				ConfirmPassword: smokePassword,
				FirstName:       "Smoke",
			})
			return err
		}},
		{"send verification", func() error {
			_, err := engine.SendVerification(ctx, reg.BusinessID)
			return err
		}},
		{"confirm verification", func() error {
			msg, ok := rt.mail.LastVerification()
			if !ok {
				return errNoMail
			}
			return engine.ConfirmVerification(ctx, reg.BusinessID, msg.Code)
		}},
		{"login", func() (err error) {
			login, err = engine.Login(ctx, email, smokePassword)
			return err
		}},
		{"validate access", func() error {
			principal, err := engine.ValidateAccess(ctx, login.AccessToken)
			if err == nil && !principal.Verified {
				err = fmt.Errorf("principal not verified")
			}
			return err
		}},
		{"refresh", func() (err error) {
			pair, err = engine.RefreshTokens(ctx, login.RefreshToken)
			return err
		}},
		{"logout", func() error {
			return engine.Logout(ctx, authcore.LogoutRequest{
				AccessToken:  pair.AccessToken,
				RefreshToken: pair.RefreshToken,
			})
		}},
		{"erase", func() error {
			return engine.EraseIdentity(ctx, reg.BusinessID)
		}},
	}

	for _, s := range steps {
		if err := step(s.name, s.fn); err != nil {
			return err
		}
	}
	fmt.Printf("smoke passed for %s\n", reg.PublicID)
	return nil
}

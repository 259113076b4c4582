package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/kalamitra/api/internal/platform/config"
)

var (
	// ErrEmailExists is returned when registering an address that already has an account.
	ErrEmailExists = errors.New("auth: email already registered")
	// ErrUserNotFound is returned when the Firebase user does not exist.
	ErrUserNotFound = errors.New("auth: user not found")
)

// NewUser describes an account to create.
type NewUser struct {
	Email       string
	Password    string
	DisplayName string
}

// UserUpdate lists the account attributes that may change. Nil fields are left untouched.
type UserUpdate struct {
	DisplayName *string
	Email       *string
	PhoneNumber *string
	PhotoURL    *string
}

// FirebaseAdmin wraps the Admin SDK auth client for token verification and account management.
type FirebaseAdmin struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// FirebaseOption customises FirebaseAdmin instances.
type FirebaseOption func(*FirebaseAdmin)

// WithFirebaseTimeout overrides the timeout used for Admin SDK calls.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(v *FirebaseAdmin) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// NewFirebaseAdmin initialises the Firebase app and its auth client.
func NewFirebaseAdmin(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseAdmin, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}

	admin := &FirebaseAdmin{client: authClient, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(admin)
		}
	}
	return admin, nil
}

// VerifyIDToken forwards verification to the underlying Firebase client using a bounded context.
func (v *FirebaseAdmin) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := v.contextWithTimeout(ctx)
	defer cancel()
	return v.client.VerifyIDToken(ctx, idToken)
}

// GetUser loads a Firebase user record for the given UID.
func (v *FirebaseAdmin) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	if err := v.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := v.contextWithTimeout(ctx)
	defer cancel()
	record, err := v.client.GetUser(ctx, uid)
	return record, mapAdminError(err)
}

// CreateUser registers an email/password account and returns its UID.
func (v *FirebaseAdmin) CreateUser(ctx context.Context, user NewUser) (string, error) {
	if err := v.ready(); err != nil {
		return "", err
	}
	params := (&firebaseauth.UserToCreate{}).
		Email(strings.TrimSpace(user.Email)).
		Password(user.Password)
	if name := strings.TrimSpace(user.DisplayName); name != "" {
		params = params.DisplayName(name)
	}

	ctx, cancel := v.contextWithTimeout(ctx)
	defer cancel()
	record, err := v.client.CreateUser(ctx, params)
	if err != nil {
		return "", mapAdminError(err)
	}
	return record.UID, nil
}

// SetRole replaces the role custom claim on the account.
func (v *FirebaseAdmin) SetRole(ctx context.Context, uid, role string) error {
	if err := v.ready(); err != nil {
		return err
	}
	ctx, cancel := v.contextWithTimeout(ctx)
	defer cancel()
	return mapAdminError(v.client.SetCustomUserClaims(ctx, uid, map[string]interface{}{roleClaim: NormalizeRole(role)}))
}

// UpdateUser applies the non-nil fields of update to the account.
func (v *FirebaseAdmin) UpdateUser(ctx context.Context, uid string, update UserUpdate) error {
	if err := v.ready(); err != nil {
		return err
	}
	params := &firebaseauth.UserToUpdate{}
	changed := false
	if update.DisplayName != nil {
		params = params.DisplayName(*update.DisplayName)
		changed = true
	}
	if update.Email != nil {
		params = params.Email(*update.Email)
		changed = true
	}
	if update.PhoneNumber != nil {
		params = params.PhoneNumber(*update.PhoneNumber)
		changed = true
	}
	if update.PhotoURL != nil {
		params = params.PhotoURL(*update.PhotoURL)
		changed = true
	}
	if !changed {
		return nil
	}

	ctx, cancel := v.contextWithTimeout(ctx)
	defer cancel()
	_, err := v.client.UpdateUser(ctx, uid, params)
	return mapAdminError(err)
}

// DeleteUser removes the account.
func (v *FirebaseAdmin) DeleteUser(ctx context.Context, uid string) error {
	if err := v.ready(); err != nil {
		return err
	}
	ctx, cancel := v.contextWithTimeout(ctx)
	defer cancel()
	return mapAdminError(v.client.DeleteUser(ctx, uid))
}

func (v *FirebaseAdmin) ready() error {
	if v == nil || v.client == nil {
		return errors.New("firebase admin not initialised")
	}
	return nil
}

func (v *FirebaseAdmin) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, v.timeout)
}

func mapAdminError(err error) error {
	switch {
	case err == nil:
		return nil
	case firebaseauth.IsEmailAlreadyExists(err):
		return fmt.Errorf("%w: %v", ErrEmailExists, err)
	case firebaseauth.IsUserNotFound(err):
		return fmt.Errorf("%w: %v", ErrUserNotFound, err)
	default:
		return err
	}
}

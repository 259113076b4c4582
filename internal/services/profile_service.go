package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/kalamitra/api/internal/domain"
	"github.com/kalamitra/api/internal/platform/auth"
	"github.com/kalamitra/api/internal/platform/textutil"
	"github.com/kalamitra/api/internal/repositories"
)

const (
	minPasswordLength     = 6
	maxDisplayNameRunes   = 100
	maxProfileFieldRunes  = 500
	maxArtisanBioRunes    = 2000
	maxYearsOfExperience  = 100
	userEventAggregate    = "user"
	profileSourceRegister = "register"
)

var (
	// ErrProfileInvalidInput indicates the request failed validation.
	ErrProfileInvalidInput = errors.New("profile: invalid input")
	// ErrProfileNotFound indicates the profile does not exist.
	ErrProfileNotFound = errors.New("profile: not found")
	// ErrProfileConflict indicates the account already exists.
	ErrProfileConflict = errors.New("profile: already exists")
	// ErrProfileForbidden indicates the caller's role does not allow the operation.
	ErrProfileForbidden = errors.New("profile: forbidden")
	// ErrProfileUnauthenticated indicates the presented token was rejected.
	ErrProfileUnauthenticated = errors.New("profile: unauthenticated")
)

// ProfileServiceDeps bundles the dependencies required to construct a profile service instance.
type ProfileServiceDeps struct {
	Users         repositories.UserRepository
	Identity      IdentityAdmin
	Authenticator TokenAuthenticator
	Events        EventPublisher
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type profileService struct {
	users         repositories.UserRepository
	identity      IdentityAdmin
	authenticator TokenAuthenticator
	events        EventPublisher
	clock         func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
}

// NewProfileService wires dependencies into a concrete ProfileService implementation.
func NewProfileService(deps ProfileServiceDeps) (ProfileService, error) {
	if deps.Users == nil {
		return nil, errors.New("profile service: user repository is required")
	}
	if deps.Identity == nil {
		return nil, errors.New("profile service: identity admin is required")
	}
	if deps.Authenticator == nil {
		return nil, errors.New("profile service: token authenticator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &profileService{
		users:         deps.Users,
		identity:      deps.Identity,
		authenticator: deps.Authenticator,
		events:        deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Register creates the Firebase account, stamps its role claim and stores the profile. The account is
// removed again when any later step fails.
func (s *profileService) Register(ctx context.Context, cmd RegisterCommand) (UserProfile, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || !strings.Contains(email, "@") {
		return UserProfile{}, fmt.Errorf("%w: a valid email is required", ErrProfileInvalidInput)
	}
	if utf8.RuneCountInString(cmd.Password) < minPasswordLength {
		return UserProfile{}, fmt.Errorf("%w: password must be at least %d characters", ErrProfileInvalidInput, minPasswordLength)
	}
	displayName, err := cleanDisplayName(cmd.DisplayName)
	if err != nil {
		return UserProfile{}, err
	}
	role := auth.NormalizeRole(cmd.Role)
	switch role {
	case "":
		role = domain.RoleBuyer
	case domain.RoleBuyer, domain.RoleArtisan:
	default:
		return UserProfile{}, fmt.Errorf("%w: unsupported role %q", ErrProfileInvalidInput, cmd.Role)
	}

	uid, err := s.identity.CreateUser(ctx, auth.NewUser{
		Email:       email,
		Password:    cmd.Password,
		DisplayName: displayName,
	})
	if err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			return UserProfile{}, ErrProfileConflict
		}
		return UserProfile{}, err
	}

	if err := s.identity.SetRole(ctx, uid, role); err != nil {
		s.rollbackAccount(ctx, uid, "set_role", err)
		return UserProfile{}, err
	}

	now := s.clock()
	profile := domain.UserProfile{
		ID:          uid,
		DisplayName: displayName,
		Email:       email,
		Role:        role,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if role == domain.RoleArtisan {
		profile.Artisan = &domain.ArtisanDetails{}
	}
	if err := s.users.Create(ctx, profile); err != nil {
		s.rollbackAccount(ctx, uid, "create_profile", err)
		if isRepoConflict(err) {
			return UserProfile{}, ErrProfileConflict
		}
		return UserProfile{}, err
	}

	publishEvent(ctx, s.events, s.logger, domain.Event{
		ID:          ulid.Make().String(),
		Type:        domain.EventUserRegistered,
		AggregateID: userEventAggregate + "/" + uid,
		OccurredAt:  now,
		Payload: map[string]any{
			"role":   role,
			"source": profileSourceRegister,
		},
	})
	s.logger(ctx, "profile.registered", map[string]any{"userId": uid, "role": role})
	return profile, nil
}

// VerifyToken resolves an ID token to its account. Profile is nil when the account has none yet.
func (s *profileService) VerifyToken(ctx context.Context, idToken string) (VerifiedUser, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return VerifiedUser{}, fmt.Errorf("%w: token is required", ErrProfileUnauthenticated)
	}
	identity, err := s.authenticator.Authenticate(ctx, idToken)
	if err != nil || identity == nil {
		return VerifiedUser{}, fmt.Errorf("%w: %v", ErrProfileUnauthenticated, err)
	}

	verified := VerifiedUser{
		UID:   identity.UID,
		Email: identity.Email,
		Role:  identity.Role(),
	}
	profile, err := s.users.FindByID(ctx, identity.UID)
	switch {
	case err == nil:
		verified.Profile = &profile
		if profile.Role != "" {
			verified.Role = profile.Role
		}
	case isRepoNotFound(err):
	default:
		return VerifiedUser{}, err
	}
	if verified.Role == "" {
		verified.Role = domain.RoleBuyer
	}
	return verified, nil
}

func (s *profileService) GetMe(ctx context.Context, userID string) (UserProfile, error) {
	return s.find(ctx, userID)
}

func (s *profileService) UpdateMe(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error) {
	profile, err := s.find(ctx, cmd.UserID)
	if err != nil {
		return UserProfile{}, err
	}

	var sync auth.UserUpdate
	if cmd.DisplayName != nil {
		name, err := cleanDisplayName(*cmd.DisplayName)
		if err != nil {
			return UserProfile{}, err
		}
		if name == "" {
			return UserProfile{}, fmt.Errorf("%w: display name cannot be empty", ErrProfileInvalidInput)
		}
		if name != profile.DisplayName {
			profile.DisplayName = name
			sync.DisplayName = &name
		}
	}
	if cmd.PhoneNumber != nil {
		profile.PhoneNumber = textutil.Truncate(textutil.StripTags(*cmd.PhoneNumber), maxProfileFieldRunes)
	}
	if cmd.Address != nil {
		profile.Address = textutil.Truncate(textutil.StripTagsMultiline(*cmd.Address), maxProfileFieldRunes)
	}
	if cmd.ProfilePicture != nil {
		picture, err := cleanURL(*cmd.ProfilePicture, "profile picture")
		if err != nil {
			return UserProfile{}, err
		}
		if picture != profile.ProfilePicture {
			profile.ProfilePicture = picture
			if picture != "" {
				sync.PhotoURL = &picture
			}
		}
	}
	profile.UpdatedAt = s.clock()

	updated, err := s.users.Update(ctx, profile)
	if err != nil {
		return UserProfile{}, s.mapProfileError(err)
	}

	if sync.DisplayName != nil || sync.PhotoURL != nil {
		if err := s.identity.UpdateUser(ctx, updated.ID, sync); err != nil {
			s.logger(ctx, "profile.identity_sync.failed", map[string]any{"userId": updated.ID, "error": err.Error()})
		}
	}
	return updated, nil
}

// DeleteMe removes the profile and then the Firebase account. Either may already be gone.
func (s *profileService) DeleteMe(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrProfileInvalidInput)
	}
	if err := s.users.Delete(ctx, userID); err != nil && !isRepoNotFound(err) {
		return err
	}
	if err := s.identity.DeleteUser(ctx, userID); err != nil && !errors.Is(err, auth.ErrUserNotFound) {
		return err
	}
	s.logger(ctx, "profile.deleted", map[string]any{"userId": userID})
	return nil
}

func (s *profileService) GetArtisan(ctx context.Context, userID string) (UserProfile, error) {
	profile, err := s.find(ctx, userID)
	if err != nil {
		return UserProfile{}, err
	}
	if profile.Role != domain.RoleArtisan {
		return UserProfile{}, fmt.Errorf("%w: profile is not an artisan", ErrProfileForbidden)
	}
	if profile.Artisan == nil {
		profile.Artisan = &domain.ArtisanDetails{}
	}
	return profile, nil
}

func (s *profileService) UpdateArtisan(ctx context.Context, cmd UpdateArtisanCommand) (UserProfile, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrProfileInvalidInput)
	}
	if cmd.YearsOfExperience != nil && (*cmd.YearsOfExperience < 0 || *cmd.YearsOfExperience > maxYearsOfExperience) {
		return UserProfile{}, fmt.Errorf("%w: years of experience must be between 0 and %d", ErrProfileInvalidInput, maxYearsOfExperience)
	}
	var portfolio string
	if cmd.PortfolioURL != nil {
		var err error
		if portfolio, err = cleanURL(*cmd.PortfolioURL, "portfolio url"); err != nil {
			return UserProfile{}, err
		}
	}

	now := s.clock()
	updated, err := s.users.UpdateArtisan(ctx, userID, func(profile *domain.UserProfile) error {
		if profile.Role != domain.RoleArtisan {
			return fmt.Errorf("%w: profile is not an artisan", ErrProfileForbidden)
		}
		details := domain.ArtisanDetails{}
		if profile.Artisan != nil {
			details = *profile.Artisan
		}
		if cmd.Bio != nil {
			details.Bio = textutil.Truncate(textutil.StripTagsMultiline(*cmd.Bio), maxArtisanBioRunes)
		}
		if cmd.Specialization != nil {
			details.Specialization = textutil.Truncate(textutil.StripTags(*cmd.Specialization), maxProfileFieldRunes)
		}
		if cmd.PortfolioURL != nil {
			details.PortfolioURL = portfolio
		}
		if cmd.YearsOfExperience != nil {
			details.YearsOfExperience = *cmd.YearsOfExperience
		}
		profile.Artisan = &details
		profile.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrProfileForbidden) {
			return UserProfile{}, err
		}
		return UserProfile{}, s.mapProfileError(err)
	}
	return updated, nil
}

// GetPublicArtisan returns an active artisan's profile. Other accounts are reported as not found.
func (s *profileService) GetPublicArtisan(ctx context.Context, artistID string) (UserProfile, error) {
	profile, err := s.find(ctx, artistID)
	if err != nil {
		return UserProfile{}, err
	}
	if profile.Role != domain.RoleArtisan || !profile.IsActive {
		return UserProfile{}, ErrProfileNotFound
	}
	if profile.Artisan == nil {
		profile.Artisan = &domain.ArtisanDetails{}
	}
	return profile, nil
}

func (s *profileService) find(ctx context.Context, userID string) (UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrProfileInvalidInput)
	}
	profile, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return UserProfile{}, s.mapProfileError(err)
	}
	return profile, nil
}

func (s *profileService) rollbackAccount(ctx context.Context, uid, step string, cause error) {
	fields := map[string]any{"userId": uid, "step": step, "error": cause.Error()}
	if err := s.identity.DeleteUser(ctx, uid); err != nil {
		fields["rollbackError"] = err.Error()
	}
	s.logger(ctx, "profile.register.rollback", fields)
}

func (s *profileService) mapProfileError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return ErrProfileNotFound
	case isRepoConflict(err):
		return ErrProfileConflict
	}
	return err
}

func cleanDisplayName(name string) (string, error) {
	name = textutil.StripTags(name)
	if utf8.RuneCountInString(name) > maxDisplayNameRunes {
		return "", fmt.Errorf("%w: display name must be at most %d characters", ErrProfileInvalidInput, maxDisplayNameRunes)
	}
	return name, nil
}

// cleanURL accepts an empty value or an absolute http(s) URL.
func cleanURL(raw, field string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %s must be an http or https url", ErrProfileInvalidInput, field)
	}
	return u.String(), nil
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

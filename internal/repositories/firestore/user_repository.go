package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kalamitra/api/internal/domain"
	pfirestore "github.com/kalamitra/api/internal/platform/firestore"
	"github.com/kalamitra/api/internal/repositories"
)

const userCollection = "users"

// UserRepository persists user profiles in Firestore keyed by Firebase UID.
type UserRepository struct {
	users    *pfirestore.Collection[userDocument]
	provider *pfirestore.Provider
	clock    func() time.Time
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		users:    pfirestore.NewCollection[userDocument](provider, userCollection),
		provider: provider,
		clock:    time.Now,
	}, nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.users == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile := toDomainProfile(doc)
	profile.ID = userID
	return profile, nil
}

// Create writes a new profile. An existing document yields a conflict error.
func (r *UserRepository) Create(ctx context.Context, profile domain.UserProfile) error {
	if r == nil || r.users == nil {
		return errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(profile.ID)
	if id == "" {
		return errors.New("profile id is required")
	}
	now := r.now()
	doc := fromDomainProfile(profile, now)
	doc.CreatedAt = now
	return r.users.Create(ctx, id, doc)
}

// Update replaces the editable fields of an existing profile.
func (r *UserRepository) Update(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.users == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(profile.ID)
	if id == "" {
		return domain.UserProfile{}, errors.New("profile id is required")
	}
	now := r.now()
	updates := []firestore.Update{
		{Path: "display_name", Value: strings.TrimSpace(profile.DisplayName)},
		{Path: "phone_number", Value: strings.TrimSpace(profile.PhoneNumber)},
		{Path: "address", Value: strings.TrimSpace(profile.Address)},
		{Path: "profile_picture", Value: strings.TrimSpace(profile.ProfilePicture)},
		{Path: "updated_at", Value: now},
	}
	if err := r.users.Update(ctx, id, updates); err != nil {
		return domain.UserProfile{}, err
	}
	return r.FindByID(ctx, id)
}

// UpdateArtisan reads the profile, applies mutate and writes the artisan section back in one transaction.
func (r *UserRepository) UpdateArtisan(ctx context.Context, userID string, mutate func(*domain.UserProfile) error) (domain.UserProfile, error) {
	if r == nil || r.users == nil || r.provider == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if mutate == nil {
		return domain.UserProfile{}, errors.New("artisan mutation is required")
	}
	userID = strings.TrimSpace(userID)

	var saved domain.UserProfile
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.users.Doc(ctx, userID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.users.Decode(snap)
		if err != nil {
			return err
		}
		profile := toDomainProfile(doc)
		profile.ID = userID
		if err := mutate(&profile); err != nil {
			return err
		}
		profile.UpdatedAt = r.now()
		next := fromDomainProfile(profile, profile.UpdatedAt)
		next.CreatedAt = doc.CreatedAt
		if err := tx.Set(ref, next); err != nil {
			return err
		}
		saved = profile
		return nil
	}, pfirestore.WithTxAttempts(3), pfirestore.WithTxTimeout(10*time.Second))
	if err != nil {
		return domain.UserProfile{}, err
	}
	return saved, nil
}

// Delete removes the profile document.
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	if r == nil || r.users == nil {
		return errors.New("user repository not initialised")
	}
	return r.users.Delete(ctx, strings.TrimSpace(userID))
}

func (r *UserRepository) now() time.Time {
	if r.clock == nil {
		return time.Now().UTC()
	}
	return r.clock().UTC()
}

type userDocument struct {
	UID            string           `firestore:"uid"`
	DisplayName    string           `firestore:"display_name"`
	Email          string           `firestore:"email"`
	PhoneNumber    string           `firestore:"phone_number"`
	Address        string           `firestore:"address"`
	ProfilePicture string           `firestore:"profile_picture"`
	Role           string           `firestore:"role"`
	IsActive       bool             `firestore:"is_active"`
	Artisan        *artisanDocument `firestore:"artisan,omitempty"`
	CreatedAt      time.Time        `firestore:"created_at"`
	UpdatedAt      time.Time        `firestore:"updated_at"`
}

type artisanDocument struct {
	Bio               string  `firestore:"bio"`
	Specialization    string  `firestore:"specialization"`
	PortfolioURL      string  `firestore:"portfolio_url"`
	YearsOfExperience int     `firestore:"years_of_experience"`
	Rating            float64 `firestore:"rating"`
}

func toDomainProfile(doc userDocument) domain.UserProfile {
	profile := domain.UserProfile{
		ID:             strings.TrimSpace(doc.UID),
		DisplayName:    strings.TrimSpace(doc.DisplayName),
		Email:          strings.TrimSpace(doc.Email),
		PhoneNumber:    strings.TrimSpace(doc.PhoneNumber),
		Address:        strings.TrimSpace(doc.Address),
		ProfilePicture: strings.TrimSpace(doc.ProfilePicture),
		Role:           normaliseRole(doc.Role),
		IsActive:       doc.IsActive,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
	if doc.Artisan != nil {
		profile.Artisan = &domain.ArtisanDetails{
			Bio:               strings.TrimSpace(doc.Artisan.Bio),
			Specialization:    strings.TrimSpace(doc.Artisan.Specialization),
			PortfolioURL:      strings.TrimSpace(doc.Artisan.PortfolioURL),
			YearsOfExperience: doc.Artisan.YearsOfExperience,
			Rating:            doc.Artisan.Rating,
		}
	}
	return profile
}

func fromDomainProfile(profile domain.UserProfile, now time.Time) userDocument {
	doc := userDocument{
		UID:            strings.TrimSpace(profile.ID),
		DisplayName:    strings.TrimSpace(profile.DisplayName),
		Email:          strings.ToLower(strings.TrimSpace(profile.Email)),
		PhoneNumber:    strings.TrimSpace(profile.PhoneNumber),
		Address:        strings.TrimSpace(profile.Address),
		ProfilePicture: strings.TrimSpace(profile.ProfilePicture),
		Role:           normaliseRole(profile.Role),
		IsActive:       profile.IsActive,
		CreatedAt:      profile.CreatedAt.UTC(),
		UpdatedAt:      now.UTC(),
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now.UTC()
	}
	if profile.Artisan != nil {
		years := profile.Artisan.YearsOfExperience
		if years < 0 {
			years = 0
		}
		doc.Artisan = &artisanDocument{
			Bio:               strings.TrimSpace(profile.Artisan.Bio),
			Specialization:    strings.TrimSpace(profile.Artisan.Specialization),
			PortfolioURL:      strings.TrimSpace(profile.Artisan.PortfolioURL),
			YearsOfExperience: years,
			Rating:            profile.Artisan.Rating,
		}
	}
	return doc
}

// normaliseRole folds the legacy role names older clients stored.
func normaliseRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case domain.RoleArtisan, "artist":
		return domain.RoleArtisan
	case domain.RoleAdmin:
		return domain.RoleAdmin
	default:
		return domain.RoleBuyer
	}
}

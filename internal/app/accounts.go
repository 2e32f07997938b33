package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"medquiz-service/internal/auth"
	"medquiz-service/internal/domain"
)

// ExternalProfile carries the optional profile fields the bot knows about a sender.
type ExternalProfile struct {
	FirstName string
	LastName  string
	Avatar    string
}

// AccountService owns user registration, password login and external identity linking.
type AccountService struct {
	users      UserRepository
	stats      StatsRepository
	bcryptCost int
}

func NewAccountService(users UserRepository, stats StatsRepository, bcryptCost int) *AccountService {
	return &AccountService{users: users, stats: stats, bcryptCost: bcryptCost}
}

// RegisterInput is the payload of a password registration.
type RegisterInput struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Register creates a password account and its zero stats.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return domain.User{}, domain.ErrMissingCredential
	}
	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return domain.User{}, domain.ErrUsernameTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.Internal("lookup username", err)
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return domain.User{}, domain.Internal("hash password", err)
	}
	user, err := s.users.CreateUser(ctx, domain.User{
		Username:     username,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.User{}, err
		}
		return domain.User{}, domain.Internal("create user", err)
	}
	if err := s.createZeroStats(ctx, user.ID); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Login checks a username/password pair.
func (s *AccountService) Login(ctx context.Context, username, password string) (domain.User, error) {
	if username == "" || password == "" {
		return domain.User{}, domain.ErrMissingCredential
	}
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, domain.Internal("lookup username", err)
	}
	if user.PasswordHash == "" || !auth.VerifyPassword(user.PasswordHash, password) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return user, nil
}

func (s *AccountService) GetUser(ctx context.Context, id int64) (domain.User, error) {
	if id <= 0 {
		return domain.User{}, domain.ErrNotLoggedIn
	}
	return s.users.GetUser(ctx, id)
}

// FindExternalUser returns the user linked to externalID; ok is false when none is.
func (s *AccountService) FindExternalUser(ctx context.Context, externalID int64) (domain.User, bool, error) {
	user, err := s.users.GetUserByExternalID(ctx, externalID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, domain.Internal("lookup external id", err)
	}
	return user, true, nil
}

// EnsureExternalUser finds the user linked to externalID or creates one.
// created reports whether a new account was made.
func (s *AccountService) EnsureExternalUser(ctx context.Context, externalID int64, profile ExternalProfile) (user domain.User, created bool, err error) {
	if externalID <= 0 {
		return domain.User{}, false, domain.ErrInvalidExternalID
	}
	user, err = s.users.GetUserByExternalID(ctx, externalID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, false, domain.Internal("lookup external id", err)
	}

	placeholder, err := auth.RandomHex(16)
	if err != nil {
		return domain.User{}, false, domain.Internal("generate password", err)
	}
	hash, err := auth.HashPassword(placeholder, s.bcryptCost)
	if err != nil {
		return domain.User{}, false, domain.Internal("hash password", err)
	}

	firstName := profile.FirstName
	if firstName == "" {
		firstName = fmt.Sprintf("Telegram User %d", externalID)
	}
	ext := externalID
	candidate := domain.User{
		Username:     "telegram_" + strconv.FormatInt(externalID, 10),
		PasswordHash: hash,
		ExternalID:   &ext,
		FirstName:    firstName,
		LastName:     profile.LastName,
		Avatar:       profile.Avatar,
	}

	for attempt := 0; attempt < 3; attempt++ {
		user, err = s.users.CreateUser(ctx, candidate)
		switch {
		case err == nil:
			if err := s.createZeroStats(ctx, user.ID); err != nil {
				return domain.User{}, false, err
			}
			log.Printf("accounts: created user %d for external id %d", user.ID, externalID)
			return user, true, nil
		case errors.Is(err, domain.ErrExternalIDTaken):
			// lost a race with a concurrent callback for the same identity
			user, err = s.users.GetUserByExternalID(ctx, externalID)
			if err != nil {
				return domain.User{}, false, domain.Internal("lookup external id", err)
			}
			return user, false, nil
		case errors.Is(err, domain.ErrUsernameTaken):
			suffix, herr := auth.RandomHex(2)
			if herr != nil {
				return domain.User{}, false, domain.Internal("generate username", herr)
			}
			candidate.Username = fmt.Sprintf("telegram_%d_%s", externalID, suffix)
		default:
			return domain.User{}, false, domain.Internal("create user", err)
		}
	}
	return domain.User{}, false, domain.Internal("create user", err)
}

func (s *AccountService) createZeroStats(ctx context.Context, userID int64) error {
	_, err := s.stats.CreateStats(ctx, domain.NewUserStats(userID))
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return domain.Internal("create stats", err)
	}
	return nil
}

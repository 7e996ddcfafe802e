package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/labkeeper/pkg/config"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// --- User CRUD ---

func (s *store) GetUserByID(
	ctx context.Context, id uint,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("getting user by id: %w", translate(err, "id"))
	}

	return &user, nil
}

func (s *store) GetUserByUsername(
	ctx context.Context, username string,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).
		Where("username = ?", username).
		First(&user).Error; err != nil {
		return nil, fmt.Errorf("getting user by username: %w", translate(err, "username"))
	}

	return &user, nil
}

func (s *store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	return users, nil
}

func (s *store) CreateUser(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("creating user: %w", translate(err, "username"))
	}

	return nil
}

func (s *store) UpdateUser(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("updating user: %w", translate(err, "username"))
	}

	return nil
}

// DeleteUser removes a user with its sessions and API keys. Authorship
// columns referencing the user are set to NULL so records survive.
func (s *store) DeleteUser(ctx context.Context, id uint) error {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		for _, m := range []any{&TestCase{}, &TestScenario{}, &TestRun{}} {
			if err := tx.Model(m).
				Where("created_by_id = ?", id).
				UpdateColumn("created_by_id", nil).Error; err != nil {
				return err
			}
		}

		for _, m := range []any{&TestScenario{}, &TestRun{}} {
			if err := tx.Model(m).
				Where("updated_by_id = ?", id).
				UpdateColumn("updated_by_id", nil).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("user_id = ?", id).Delete(&Session{}).Error; err != nil {
			return err
		}

		if err := tx.Where("user_id = ?", id).Delete(&APIKey{}).Error; err != nil {
			return err
		}

		return deleteByID[User](tx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	return nil
}

// SeedUsers upserts config-sourced users. Only users with source="config"
// are updated; users created by admins are preserved.
func (s *store) SeedUsers(
	ctx context.Context, users []config.AuthUser,
) error {
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword(
			[]byte(u.Password), bcrypt.DefaultCost,
		)
		if err != nil {
			return fmt.Errorf("hashing password for %q: %w", u.Username, err)
		}

		var existing User

		result := s.db.WithContext(ctx).
			Where("username = ? AND source = ?", u.Username, SourceConfig).
			First(&existing)

		if result.Error == nil {
			existing.PasswordHash = string(hash)
			existing.Role = u.Role

			if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
				return fmt.Errorf("updating config user %q: %w", u.Username, err)
			}

			continue
		}

		// Create new config user (only if username not taken).
		newUser := User{
			Username:     u.Username,
			PasswordHash: string(hash),
			Role:         u.Role,
			Source:       SourceConfig,
		}

		if err := s.db.WithContext(ctx).
			Where("username = ?", u.Username).
			FirstOrCreate(&newUser).Error; err != nil {
			return fmt.Errorf("seeding config user %q: %w", u.Username, err)
		}
	}

	s.log.WithField("count", len(users)).
		Info("Seeded users from config")

	return nil
}

// --- Session CRUD ---

func (s *store) CreateSession(
	ctx context.Context, session *Session,
) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	return nil
}

func (s *store) GetSessionByToken(
	ctx context.Context, token string,
) (*Session, error) {
	var session Session
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		First(&session).Error; err != nil {
		return nil, fmt.Errorf("getting session by token: %w", translate(err, "token"))
	}

	return &session, nil
}

func (s *store) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	return sessions, nil
}

func (s *store) UpdateSessionLastActive(
	ctx context.Context, id uint, t time.Time,
) error {
	if err := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", id).
		Update("last_active_at", t).Error; err != nil {
		return fmt.Errorf("updating session last active: %w", err)
	}

	return nil
}

func (s *store) DeleteSession(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

func (s *store) DeleteSessionByID(ctx context.Context, id uint) error {
	if err := deleteByID[Session](s.db.WithContext(ctx), id); err != nil {
		return fmt.Errorf("deleting session by id: %w", err)
	}

	return nil
}

func (s *store) DeleteExpiredSessions(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC()).
		Delete(&Session{})
	if result.Error != nil {
		return fmt.Errorf("deleting expired sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.WithField("count", result.RowsAffected).
			Debug("Cleaned up expired sessions")
	}

	return nil
}

// --- API key CRUD ---

func (s *store) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("creating api key: %w", err)
	}

	return nil
}

func (s *store) GetAPIKeyByHash(
	ctx context.Context, hash string,
) (*APIKey, error) {
	var key APIKey
	if err := s.db.WithContext(ctx).
		Where("key_hash = ?", hash).
		First(&key).Error; err != nil {
		return nil, fmt.Errorf("getting api key: %w", translate(err, "key"))
	}

	return &key, nil
}

func (s *store) ListAPIKeysByUser(
	ctx context.Context, userID uint,
) ([]APIKey, error) {
	var keys []APIKey
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}

	return keys, nil
}

func (s *store) ListAllAPIKeys(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("listing all api keys: %w", err)
	}

	return keys, nil
}

func (s *store) UpdateAPIKeyLastUsed(
	ctx context.Context, id uint, t time.Time,
) error {
	if err := s.db.WithContext(ctx).
		Model(&APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", t).Error; err != nil {
		return fmt.Errorf("updating api key last used: %w", err)
	}

	return nil
}

func (s *store) DeleteAPIKey(ctx context.Context, id uint) error {
	if err := deleteByID[APIKey](s.db.WithContext(ctx), id); err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}

	return nil
}

func (s *store) DeleteExpiredAPIKeys(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", time.Now().UTC()).
		Delete(&APIKey{})
	if result.Error != nil {
		return fmt.Errorf("deleting expired api keys: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.WithField("count", result.RowsAffected).
			Debug("Cleaned up expired API keys")
	}

	return nil
}

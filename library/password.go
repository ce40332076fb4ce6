package library

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"library-lending/logger"
)

// PasswordCost is the bcrypt cost used by HashPassword.
var PasswordCost = bcrypt.DefaultCost

// HashPassword hashes a member credential for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a credential with its stored bcrypt hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func isPasswordHash(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

// AuthenticateMember loads the member and checks the password. Members
// created before credentials were hashed still carry the plain value; a
// successful login replaces it with a hash.
func (lm *LibraryManager) AuthenticateMember(ctx context.Context, memberID int64, password string) (*Member, error) {
	m, err := lm.Member(ctx, memberID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if isPasswordHash(m.Password) {
		if !VerifyPassword(password, m.Password) {
			return nil, ErrInvalidCredentials
		}
		return m, nil
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(m.Password)) != 1 {
		return nil, ErrInvalidCredentials
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	m.Password = hash
	if err := lm.members.Save(ctx, m); err != nil {
		return nil, err
	}
	logger.Info("Upgraded plain member credential", "member_id", m.ID)
	return m, nil
}

// ResetMemberPassword stores a new hashed credential for the member.
func (lm *LibraryManager) ResetMemberPassword(ctx context.Context, memberID int64, password string) error {
	m, err := lm.members.FindByID(ctx, memberID)
	if err != nil {
		return err
	}
	if m.Password, err = HashPassword(password); err != nil {
		return err
	}
	return lm.members.Save(ctx, m)
}

package credentials

import (
	"context"
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nmkhang/authcore/internal/common"
	"github.com/nmkhang/authcore/params"
)

type resetTokenClaims struct {
	// CredentialFingerprint binds the token to the hash it was issued against,
	// so rotating the password invalidates every outstanding token.
	CredentialFingerprint string `json:"cfp"`
	jwt.RegisteredClaims
}

// IssueResetToken signs a short-lived out-of-band reset token for the
// principal. Tokens are single-use by construction: they carry a fingerprint
// of the current hash and stop verifying once the password changes.
func (s *Store) IssueResetToken(ctx context.Context, principalID uint) (string, error) {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return "", err
	}
	now := s.nowFunc()
	claims := resetTokenClaims{
		CredentialFingerprint: common.HashSecret(s.masterKey, principal.PasswordHash)[:16],
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(principal.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(params.ResetTokenMaxAge)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.masterKey))
}

// ResetPassword is the administrative/out-of-band rotation path: same policy
// and history checks as ChangePassword, but authorized by a reset token
// instead of the current password. Returns the principal ID whose sessions
// the caller must revoke.
func (s *Store) ResetPassword(ctx context.Context, token string, newPassword string) (uint, error) {
	var claims resetTokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.masterKey), nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidResetToken
	}
	principalID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidResetToken
	}

	principal, err := s.principals.GetByID(ctx, uint(principalID))
	if err != nil {
		return 0, ErrInvalidResetToken
	}
	if common.HashSecret(s.masterKey, principal.PasswordHash)[:16] != claims.CredentialFingerprint {
		return 0, ErrInvalidResetToken
	}

	err = s.rotate(ctx, principal.ID, principal.PasswordHash, newPassword,
		ProfileSubstrings(principal.Username, principal.Email, principal.FullName))
	if err != nil {
		return 0, err
	}
	return principal.ID, nil
}

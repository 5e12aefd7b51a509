package credentials

import (
	"context"
	"time"

	"github.com/nmkhang/authcore/internal/config"
	"github.com/nmkhang/authcore/internal/principals"
	"github.com/nmkhang/authcore/params"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the principal does not exist, so unknown
// identities cost the same as a wrong password.
var dummyHash []byte

func init() {
	var err error
	dummyHash, err = bcrypt.GenerateFromPassword([]byte("authcore-dummy-credential"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
}

// Store verifies and rotates password credentials. It is the only component
// that reads or writes password hashes and credential history.
type Store struct {
	policy     *Policy
	principals principals.Repository
	masterKey  string
	historyLen int
	validity   time.Duration
	nowFunc    func() time.Time
}

func NewStore(repo principals.Repository, policyCfg config.PasswordPolicyConfig, masterKey string) *Store {
	return &Store{
		policy:     NewPolicy(policyCfg),
		principals: repo,
		masterKey:  masterKey,
		historyLen: policyCfg.HistorySize,
		validity:   policyCfg.Validity(),
		nowFunc:    time.Now,
	}
}

func (s *Store) Policy() *Policy {
	return s.policy
}

// Verify compares plaintext against the stored hash. A mismatch returns
// (false, nil); only a store-level problem returns an error.
func (s *Store) Verify(ctx context.Context, principalID uint, plaintext string) (bool, error) {
	// the lookup is on the login hot path; bound it so a stalled database
	// surfaces as a deadline error the caller can treat as transient
	lookupCtx, cancel := context.WithTimeout(ctx, params.StoreCallTimeout)
	defer cancel()

	principal, err := s.principals.GetByID(lookupCtx, principalID)
	if err != nil {
		return false, err
	}
	err = bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(plaintext))
	return err == nil, nil
}

// VerifyDummy burns a bcrypt comparison against a fixed hash. Called on the
// unknown-identity path so its latency profile matches Verify.
func (s *Store) VerifyDummy(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plaintext))
}

// ChangePassword rotates the credential after verifying the current one and
// checking policy and history. The hash update, history push and trim happen
// in one transaction.
func (s *Store) ChangePassword(ctx context.Context, principalID uint, oldPassword, newPassword string) error {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	return s.rotate(ctx, principal.ID, principal.PasswordHash, newPassword,
		ProfileSubstrings(principal.Username, principal.Email, principal.FullName))
}

func (s *Store) rotate(ctx context.Context, principalID uint, currentHash, newPassword string, forbidden []string) error {
	if err := s.policy.Validate(newPassword, forbidden...); err != nil {
		return err
	}

	// no reuse among the current hash and the last N history entries
	if bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(newPassword)) == nil {
		return ErrReusedCredential
	}
	history, err := s.principals.RecentCredentials(ctx, principalID, s.historyLen)
	if err != nil {
		return err
	}
	for _, entry := range history {
		if bcrypt.CompareHashAndPassword([]byte(entry.Hash), []byte(newPassword)) == nil {
			return ErrReusedCredential
		}
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := s.nowFunc()
	updates := map[string]any{
		"password_hash":        string(newHash),
		"password_algo":        "bcrypt",
		"password_changed_at":  now,
		"password_expires_at":  now.Add(s.validity),
		"must_change_password": false,
	}
	return s.principals.RotatePassword(ctx, principalID, currentHash, updates, s.historyLen)
}

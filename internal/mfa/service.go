package mfa

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nmkhang/authcore/internal/common"
	"github.com/nmkhang/authcore/internal/store"
	"github.com/nmkhang/authcore/model"
	"github.com/nmkhang/authcore/params"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	FactorTypeTOTP = "totp"

	MethodTOTP       = "totp"
	MethodBackupCode = "backup_code"

	totpPeriod = 30
)

// Enrollment is returned exactly once from BeginEnrollment; the plaintext
// backup codes are not retrievable afterwards.
type Enrollment struct {
	ID              string
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// pendingEnrollment lives in the counter store until confirmed or expired.
// MFA is not considered enabled while an enrollment is pending.
type pendingEnrollment struct {
	ID          string `redis:"id"`
	PrincipalID uint   `redis:"principal_id"`
	Secret      string `redis:"secret"`
	URL         string `redis:"url"`
	CodeHashes  string `redis:"code_hashes"` // ';'-joined
}

type Service struct {
	issuer      string
	masterKey   string
	factors     FactorRepository
	backupCodes BackupCodeRepository
	enrollments store.Store[pendingEnrollment]
	nowFunc     func() time.Time
}

func NewService(issuer, masterKey string, storage store.Storage, factors FactorRepository, backupCodes BackupCodeRepository) *Service {
	return &Service{
		issuer:      issuer,
		masterKey:   masterKey,
		factors:     factors,
		backupCodes: backupCodes,
		enrollments: store.New[pendingEnrollment](storage, params.EnrollmentKeyPrefix),
		nowFunc:     time.Now,
	}
}

func (s *Service) hashCode(code string) string {
	return common.HashSecret(s.masterKey, code)
}

func validateTOTP(code, secret string, at time.Time) bool {
	// Skew 1 accepts codes from the adjacent time steps, trading a small
	// replay surface for clock-skew robustness.
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// BeginEnrollment generates a fresh secret and backup codes without enabling
// MFA yet; the pending state expires unless confirmed in time.
func (s *Service) BeginEnrollment(ctx context.Context, principalID uint, accountName string) (*Enrollment, error) {
	if factor, err := s.factors.Get(ctx, principalID, FactorTypeTOTP); err == nil && factor.Enabled {
		return nil, ErrAlreadyEnabled
	} else if err != nil && !errors.Is(err, ErrNotEnabled) {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      totpPeriod,
	})
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, params.BackupCodeCount)
	hashes := make([]string, 0, params.BackupCodeCount)
	for i := 0; i < params.BackupCodeCount; i++ {
		code, err := common.GenerateSecret(params.BackupCodeLength)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, s.hashCode(code))
	}

	pending := pendingEnrollment{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		Secret:      key.Secret(),
		URL:         key.URL(),
		CodeHashes:  strings.Join(hashes, ";"),
	}
	if err := s.enrollments.Set(ctx, pending.ID, pending, params.EnrollmentMaxAge); err != nil {
		return nil, err
	}

	return &Enrollment{
		ID:              pending.ID,
		Secret:          pending.Secret,
		ProvisioningURI: pending.URL,
		BackupCodes:     codes,
	}, nil
}

// ConfirmEnrollment verifies a live code against the pending secret and, on
// success, persists the factor as enabled together with the backup codes.
func (s *Service) ConfirmEnrollment(ctx context.Context, principalID uint, enrollmentID, code string) error {
	pending, err := s.enrollments.Get(ctx, enrollmentID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrEnrollmentNotFound
	}
	if err != nil {
		return err
	}
	if pending.PrincipalID != principalID {
		return ErrEnrollmentNotFound
	}

	now := s.nowFunc()
	if !validateTOTP(code, pending.Secret, now) {
		return ErrCodeInvalid
	}

	factor := &model.MFAFactor{
		PrincipalID:  principalID,
		Type:         FactorTypeTOTP,
		Secret:       pending.Secret,
		Enabled:      true,
		LastUsedStep: now.Unix() / totpPeriod,
		LastUsedAt:   &now,
	}
	if err := s.factors.Upsert(ctx, factor); err != nil {
		return err
	}
	if err := s.backupCodes.Replace(ctx, principalID, strings.Split(pending.CodeHashes, ";")); err != nil {
		return err
	}
	return s.enrollments.Delete(ctx, enrollmentID)
}

// Verify accepts either a valid TOTP code or an unused backup code. Backup
// codes are consumed atomically: of two concurrent attempts with the same
// code, exactly one succeeds.
func (s *Service) Verify(ctx context.Context, principalID uint, code string) error {
	ctx, cancel := context.WithTimeout(ctx, params.StoreCallTimeout)
	defer cancel()

	factor, err := s.factors.Get(ctx, principalID, FactorTypeTOTP)
	if err != nil {
		return err
	}
	if !factor.Enabled {
		return ErrNotEnabled
	}

	now := s.nowFunc()
	if validateTOTP(code, factor.Secret, now) {
		ok, err := s.factors.MarkUsedStep(ctx, principalID, FactorTypeTOTP, now.Unix()/totpPeriod)
		if err != nil {
			return err
		}
		if !ok {
			// same time step already verified; treat the replay as invalid
			return ErrCodeInvalid
		}
		return nil
	}

	consumed, err := s.backupCodes.Consume(ctx, principalID, s.hashCode(code))
	if err != nil {
		return err
	}
	if !consumed {
		return ErrCodeInvalid
	}
	return nil
}

// Disable invalidates the secret and all remaining backup codes. The caller
// is responsible for re-verifying the principal's credential first.
func (s *Service) Disable(ctx context.Context, principalID uint) error {
	if err := s.factors.Delete(ctx, principalID, FactorTypeTOTP); err != nil {
		return err
	}
	return s.backupCodes.Replace(ctx, principalID, nil)
}

func (s *Service) Enabled(ctx context.Context, principalID uint) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, params.StoreCallTimeout)
	defer cancel()

	factor, err := s.factors.Get(ctx, principalID, FactorTypeTOTP)
	if errors.Is(err, ErrNotEnabled) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return factor.Enabled, nil
}

// Methods lists the verification methods currently available to a principal.
func (s *Service) Methods(ctx context.Context, principalID uint) ([]string, error) {
	enabled, err := s.Enabled(ctx, principalID)
	if err != nil || !enabled {
		return nil, err
	}
	methods := []string{MethodTOTP}
	count, err := s.backupCodes.Count(ctx, principalID)
	if err != nil {
		return methods, nil
	}
	if count > 0 {
		methods = append(methods, MethodBackupCode)
	}
	return methods, nil
}

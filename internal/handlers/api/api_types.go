package api

import "time"

const apiVersion = "1.0"

type APIResponse struct {
	APIVersion string        `json:"apiVersion"`
	Data       any           `json:"data,omitempty"`
	Error      *APIErrorInfo `json:"error,omitempty"`
}

type APIErrorInfo struct {
	Code       int    `json:"code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfter,omitempty"` // seconds
}

func NewDataResponse(data any) APIResponse {
	return APIResponse{
		APIVersion: apiVersion,
		Data:       data,
	}
}

func NewErrorResponse(code int, status string, message string) APIResponse {
	return APIResponse{
		APIVersion: apiVersion,
		Error: &APIErrorInfo{
			Code:    code,
			Status:  status,
			Message: message,
		},
	}
}

type userInfoResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type loginRequest struct {
	Identity   string `json:"identity"`
	Password   string `json:"password"`
	MFACode    string `json:"mfaCode,omitempty"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

type loginResponse struct {
	Status             string            `json:"status"`
	SessionKey         string            `json:"sessionKey,omitempty"`
	ExpiresAt          *time.Time        `json:"expiresAt,omitempty"`
	MustChangePassword bool              `json:"mustChangePassword,omitempty"`
	AvailableMethods   []string          `json:"availableMethods,omitempty"`
	User               *userInfoResponse `json:"user,omitempty"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type forgotPasswordRequest struct {
	Identity string `json:"identity"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type enrollmentResponse struct {
	EnrollmentID    string   `json:"enrollmentId"`
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioningUri"`
	BackupCodes     []string `json:"backupCodes"`
}

type confirmEnrollmentRequest struct {
	EnrollmentID string `json:"enrollmentId"`
	Code         string `json:"code"`
}

type disableMFARequest struct {
	Password string `json:"password"`
}

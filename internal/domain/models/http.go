package models

// VerifyRequest is the body of POST /api/auth/verify.
type VerifyRequest struct {
	InitData string `json:"init_data" validate:"required"`
}

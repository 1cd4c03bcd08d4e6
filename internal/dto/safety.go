package dto

type BlockRequest struct {
	UserID string `json:"user_id" validate:"required" example:"user_xyz789"`
}

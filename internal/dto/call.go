package dto

import "time"

type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=spark pass" example:"spark" enums:"spark,pass"`
}

type ReportRequest struct {
	Reason string `json:"reason" validate:"max=500" example:"inappropriate behaviour"`
}

type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}

type JoinResponse struct {
	Token    string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	URL      string `json:"url" example:"wss://media.example.com"`
	Room     string `json:"room" example:"room_4f1c..."`
	Identity string `json:"identity" example:"call_abc123:a"`
}

type ConnectionResponse struct {
	ID        string    `json:"id" example:"conn_abc123"`
	CallID    string    `json:"call_id" example:"call_abc123"`
	PeerID    string    `json:"peer_id" example:"user_xyz789"`
	CreatedAt time.Time `json:"created_at"`
}

type ConnectionListResponse struct {
	Connections []ConnectionResponse `json:"connections"`
}

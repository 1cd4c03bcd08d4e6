package dto

import "time"

type AdmitResponse struct {
	PoolID   string    `json:"pool_id" example:"pool_abc123"`
	Status   string    `json:"status" example:"waiting"`
	JoinedAt time.Time `json:"joined_at"`
}

type PairResponse struct {
	Status       string `json:"status" example:"matched" enums:"matched,queued"`
	CallID       string `json:"call_id,omitempty" example:"call_abc123"`
	ChannelToken string `json:"channel_token,omitempty" example:"room_4f1c..."`
}

type QueueStatusResponse struct {
	PoolID   string    `json:"pool_id" example:"pool_abc123"`
	Status   string    `json:"status" example:"waiting"`
	JoinedAt time.Time `json:"joined_at"`
	CallID   string    `json:"call_id,omitempty" example:"call_abc123"`
	Waiting  int64     `json:"waiting" example:"12"`
}

package dto

import "time"

type PoolResponse struct {
	ID       string    `json:"id" example:"pool_abc123"`
	Name     string    `json:"name" example:"Friday Night Drop"`
	Status   string    `json:"status" example:"live"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Open     bool      `json:"open" example:"true"`
}

type PoolListResponse struct {
	Pools []PoolResponse `json:"pools"`
}

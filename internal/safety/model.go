package safety

import "time"

// BlockRelation is a directed pair; pairing is forbidden when either direction exists.
type BlockRelation struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	BlockerID string    `gorm:"not null;uniqueIndex:idx_block_pair,priority:1" json:"blocker_id"`
	BlockedID string    `gorm:"not null;uniqueIndex:idx_block_pair,priority:2;index" json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Report struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	CallID     string    `gorm:"not null;index" json:"call_id"`
	ReporterID string    `gorm:"not null;index" json:"reporter_id"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

package model

import "time"

// User is the ticket owner's account as read for prompt context.
// Money fields are in cents; traffic fields are in bytes.
type User struct {
	ID                int64      `json:"id"`
	Email             string     `json:"email"`
	PlanID            *int64     `json:"plan_id,omitempty"`
	ExpiredAt         *time.Time `json:"expired_at,omitempty"`
	SpeedLimit        *int64     `json:"speed_limit,omitempty"` // Mbps
	DeviceLimit       *int64     `json:"device_limit,omitempty"`
	TransferEnable    int64      `json:"transfer_enable"`
	Upload            int64      `json:"u"`
	Download          int64      `json:"d"`
	Balance           int64      `json:"balance"`
	CommissionBalance int64      `json:"commission_balance"`
	Banned            bool       `json:"banned"`
	IsAdmin           bool       `json:"is_admin"`
	IsStaff           bool       `json:"is_staff"`
}

type Plan struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AccountSnapshot is a point-in-time, read-only view of a ticket owner's
// account. It is only rendered into prompt text, never written back.
type AccountSnapshot struct {
	User User
	Plan *Plan
}

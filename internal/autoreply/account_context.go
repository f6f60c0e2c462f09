package autoreply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"basegraph.app/autoreply/internal/model"
	"basegraph.app/autoreply/internal/store"
)

// ErrNoOwner means the ticket's owning user could not be resolved.
var ErrNoOwner = errors.New("ticket has no resolvable owner")

// ContextBuilder renders the ticket owner's account into a prompt fragment.
type ContextBuilder struct {
	users store.UserStore
	plans store.PlanStore
	now   func() time.Time
}

func NewContextBuilder(users store.UserStore, plans store.PlanStore) *ContextBuilder {
	return &ContextBuilder{users: users, plans: plans, now: time.Now}
}

// WithClock replaces the wall clock used for expiry math and the time line.
func (b *ContextBuilder) WithClock(now func() time.Time) *ContextBuilder {
	b.now = now
	return b
}

// Build returns the context block, or "" when the owner cannot be resolved or
// anything fails along the way. Context only enriches the prompt.
func (b *ContextBuilder) Build(ctx context.Context, ticket *model.Ticket, speedLimitWarning int64) string {
	snapshot, err := b.snapshot(ctx, ticket)
	if err != nil {
		if errors.Is(err, ErrNoOwner) {
			slog.InfoContext(ctx, "ticket owner not found, skipping account context", "user_id", ticket.UserID)
		} else {
			slog.WarnContext(ctx, "failed to build account context", "error", err)
		}
		return ""
	}
	return RenderAccountContext(snapshot, speedLimitWarning, b.now())
}

func (b *ContextBuilder) snapshot(ctx context.Context, ticket *model.Ticket) (model.AccountSnapshot, error) {
	if ticket == nil || ticket.UserID == 0 {
		return model.AccountSnapshot{}, ErrNoOwner
	}

	user, err := b.users.GetByID(ctx, ticket.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.AccountSnapshot{}, ErrNoOwner
		}
		return model.AccountSnapshot{}, fmt.Errorf("loading user %d: %w", ticket.UserID, err)
	}

	snapshot := model.AccountSnapshot{User: *user}
	if user.PlanID != nil {
		plan, err := b.plans.GetByID(ctx, *user.PlanID)
		if err != nil {
			return model.AccountSnapshot{}, fmt.Errorf("loading plan %d: %w", *user.PlanID, err)
		}
		snapshot.Plan = plan
	}
	return snapshot, nil
}

// RenderAccountContext lays the sections out in a fixed order: account facts,
// the speed advisory when it applies, then the current time.
func RenderAccountContext(s model.AccountSnapshot, speedLimitWarning int64, now time.Time) string {
	u := s.User
	var sb strings.Builder

	sb.WriteString("[Customer Account]\n")
	fmt.Fprintf(&sb, "Email: %s\n", u.Email)

	if s.Plan != nil && s.Plan.Name != "" {
		fmt.Fprintf(&sb, "Subscription plan: %s\n", s.Plan.Name)
	} else {
		sb.WriteString("Subscription plan: unsubscribed\n")
	}

	switch {
	case u.ExpiredAt == nil:
		sb.WriteString("Expires: no expiry\n")
	case u.ExpiredAt.Before(now):
		fmt.Fprintf(&sb, "Expires: %s (expired)\n", u.ExpiredAt.In(now.Location()).Format(time.DateTime))
	default:
		left := u.ExpiredAt.Sub(now)
		days := int(left.Hours()) / 24
		hours := int(left.Hours()) % 24
		fmt.Fprintf(&sb, "Expires: %s (%d days %d hours remaining)\n", u.ExpiredAt.In(now.Location()).Format(time.DateTime), days, hours)
	}

	if u.SpeedLimit != nil && *u.SpeedLimit > 0 {
		fmt.Fprintf(&sb, "Speed limit: %d Mbps\n", *u.SpeedLimit)
	} else {
		sb.WriteString("Speed limit: unlimited\n")
	}

	if u.TransferEnable > 0 {
		used := u.Upload + u.Download
		remaining := u.TransferEnable - used
		percent := float64(used) / float64(u.TransferEnable) * 100
		fmt.Fprintf(&sb, "Traffic quota: %s\n", FormatBytes(u.TransferEnable))
		fmt.Fprintf(&sb, "Traffic used: %s (%.2f%%)\n", FormatBytes(used), percent)
		fmt.Fprintf(&sb, "Traffic remaining: %s\n", FormatBytes(remaining))
	} else {
		sb.WriteString("Traffic quota: unassigned\n")
	}

	fmt.Fprintf(&sb, "Account balance: %.2f\n", float64(u.Balance)/100)
	if u.CommissionBalance > 0 {
		fmt.Fprintf(&sb, "Commission balance: %.2f\n", float64(u.CommissionBalance)/100)
	}

	if u.DeviceLimit != nil && *u.DeviceLimit > 0 {
		fmt.Fprintf(&sb, "Device limit: %d\n", *u.DeviceLimit)
	}

	if u.Banned {
		sb.WriteString("Account status: banned\n")
	} else {
		sb.WriteString("Account status: normal\n")
	}

	if u.SpeedLimit != nil && *u.SpeedLimit > 0 && *u.SpeedLimit <= speedLimitWarning {
		sb.WriteString("\n[Speed Limit Notice]\n")
		fmt.Fprintf(&sb, "This account is limited to %d Mbps. If the customer reports slow speeds or buffering, "+
			"proactively explain that their plan has a speed limit and suggest contacting support for an upgrade.\n", *u.SpeedLimit)
	}

	sb.WriteString("\n[Current Time]\n")
	fmt.Fprintf(&sb, "%s\n", now.Format("2006-01-02 15:04:05 MST"))

	return sb.String()
}

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders n on a base-1024 scale with at most two decimals:
// 0 -> "0 B", 1024 -> "1 KB", 1536 -> "1.5 KB".
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + FormatBytes(-n)
	}

	value := float64(n)
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + byteUnits[unit]
}

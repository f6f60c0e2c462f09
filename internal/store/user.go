package store

import (
	"context"

	"basegraph.app/autoreply/core/db"
	"basegraph.app/autoreply/internal/model"
)

const (
	getUserSQL = `
SELECT id, email, plan_id, expired_at, speed_limit, device_limit,
       transfer_enable, u, d, balance, commission_balance, banned, is_admin, is_staff
FROM users
WHERE id = $1`

	getPlanSQL = `SELECT id, name FROM plans WHERE id = $1`
)

type userStore struct {
	conn db.DBTX
}

func newUserStore(conn db.DBTX) UserStore {
	return &userStore{conn: conn}
}

func (s *userStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := s.conn.QueryRow(ctx, getUserSQL, id).Scan(
		&u.ID, &u.Email, &u.PlanID, &u.ExpiredAt, &u.SpeedLimit, &u.DeviceLimit,
		&u.TransferEnable, &u.Upload, &u.Download, &u.Balance, &u.CommissionBalance,
		&u.Banned, &u.IsAdmin, &u.IsStaff,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

type planStore struct {
	conn db.DBTX
}

func newPlanStore(conn db.DBTX) PlanStore {
	return &planStore{conn: conn}
}

func (s *planStore) GetByID(ctx context.Context, id int64) (*model.Plan, error) {
	var p model.Plan
	if err := s.conn.QueryRow(ctx, getPlanSQL, id).Scan(&p.ID, &p.Name); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

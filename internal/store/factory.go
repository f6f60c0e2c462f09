package store

import (
	"basegraph.app/autoreply/core/db"
)

// Stores hands out stores bound to one connection or transaction.
type Stores struct {
	conn db.DBTX
}

func NewStores(conn db.DBTX) *Stores {
	return &Stores{conn: conn}
}

func (s *Stores) Tickets() TicketStore {
	return newTicketStore(s.conn)
}

func (s *Stores) Messages() MessageStore {
	return newMessageStore(s.conn)
}

func (s *Stores) Users() UserStore {
	return newUserStore(s.conn)
}

func (s *Stores) Plans() PlanStore {
	return newPlanStore(s.conn)
}

func (s *Stores) Settings() SettingsStore {
	return newSettingsStore(s.conn)
}

package wallet

import (
	"github.com/xrpracing/racegarage/pkg/model"
)

// Session is the explicit wallet context passed to every operation.
// The seed is empty for extension sessions.
type Session struct {
	address string
	seed    string
	conn    model.ConnectionType
	mirror  *Mirror
}

func NewSession(address, seed string, conn model.ConnectionType, mirror *Mirror) *Session {
	return &Session{address: address, seed: seed, conn: conn, mirror: mirror}
}

func (s *Session) Address() string {
	if s == nil {
		return ""
	}
	return s.address
}

func (s *Session) Seed() string {
	if s == nil {
		return ""
	}
	return s.seed
}

func (s *Session) ConnectionType() model.ConnectionType {
	if s == nil {
		return ""
	}
	return s.conn
}

func (s *Session) Mirror() *Mirror {
	if s == nil {
		return nil
	}
	return s.mirror
}

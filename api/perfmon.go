package api

import (
	"github.com/udtproto/udt"
	"github.com/udtproto/udt/metrics"
)

// Perfmon returns the §6 performance snapshot for this socket's
// connection (the legacy perfmon() call).
func (s *Socket) Perfmon() (metrics.Snapshot, error) {
	c, err := s.boundConn()
	if err != nil {
		return metrics.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// lastErrorOrDefault returns a generic invalid-parameter error when a
// caller asks for getlasterror but nothing has been recorded yet.
func (s *Socket) lastErrorOrDefault() *udt.Error {
	if e := s.GetLastError(); e != nil {
		return e
	}
	return udt.NewError(udt.CategoryInvalidParam, 0, "no error recorded")
}

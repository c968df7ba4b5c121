package api

import (
	"time"

	"github.com/udtproto/udt"
)

// Opt names one of §6's configurable options, addressable through
// getsockopt/setsockopt.
type Opt int

const (
	OptMSS Opt = iota
	OptSndSyn
	OptRcvSyn
	OptFC
	OptSndBuf
	OptRcvBuf
	OptUDPSndBuf
	OptUDPRcvBuf
	OptLinger
	OptMaxMsg
	OptMsgTTL
	OptRendezvous
	OptSndTimeo
	OptRcvTimeo
	OptReuseAddr
)

// SetSockOpt sets one configurable option (§6). MSS, UDP_SNDBUF,
// UDP_RCVBUF, RENDEZVOUS and REUSEADDR only take effect before Bind;
// changing them afterward returns ErrWrongState, matching
// the legacy implementation's "some options must be set pre-bind" rule.
func (s *Socket) SetSockOpt(opt Opt, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bound := s.mplex != nil
	switch opt {
	case OptMSS:
		if bound {
			return udt.ErrWrongState
		}
		s.cfg.MSS = value.(int)
	case OptSndSyn:
		s.cfg.SndSyn = value.(bool)
	case OptRcvSyn:
		s.cfg.RcvSyn = value.(bool)
	case OptFC:
		s.cfg.FC = value.(int)
	case OptSndBuf:
		s.cfg.SndBuf = value.(int)
	case OptRcvBuf:
		s.cfg.RcvBuf = value.(int)
	case OptUDPSndBuf:
		if bound {
			return udt.ErrWrongState
		}
		s.cfg.UDPSndBuf = value.(int)
	case OptUDPRcvBuf:
		if bound {
			return udt.ErrWrongState
		}
		s.cfg.UDPRcvBuf = value.(int)
	case OptLinger:
		s.cfg.Linger = time.Duration(value.(int64))
	case OptMaxMsg:
		s.cfg.MaxMsg = value.(int)
	case OptMsgTTL:
		s.cfg.MsgTTL = time.Duration(value.(int64))
	case OptRendezvous:
		if bound {
			return udt.ErrWrongState
		}
		s.cfg.Rendezvous = value.(bool)
	case OptSndTimeo:
		s.cfg.SndTimeo = time.Duration(value.(int64))
	case OptRcvTimeo:
		s.cfg.RcvTimeo = time.Duration(value.(int64))
	case OptReuseAddr:
		if bound {
			return udt.ErrWrongState
		}
		s.cfg.ReuseAddr = value.(bool)
	default:
		return udt.NewError(udt.CategoryInvalidParam, 1, "unknown option")
	}
	return nil
}

// GetSockOpt reads one configurable option's current value.
func (s *Socket) GetSockOpt(opt Opt) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch opt {
	case OptMSS:
		return s.cfg.MSS, nil
	case OptSndSyn:
		return s.cfg.SndSyn, nil
	case OptRcvSyn:
		return s.cfg.RcvSyn, nil
	case OptFC:
		return s.cfg.FC, nil
	case OptSndBuf:
		return s.cfg.SndBuf, nil
	case OptRcvBuf:
		return s.cfg.RcvBuf, nil
	case OptUDPSndBuf:
		return s.cfg.UDPSndBuf, nil
	case OptUDPRcvBuf:
		return s.cfg.UDPRcvBuf, nil
	case OptLinger:
		return int64(s.cfg.Linger), nil
	case OptMaxMsg:
		return s.cfg.MaxMsg, nil
	case OptMsgTTL:
		return int64(s.cfg.MsgTTL), nil
	case OptRendezvous:
		return s.cfg.Rendezvous, nil
	case OptSndTimeo:
		return int64(s.cfg.SndTimeo), nil
	case OptRcvTimeo:
		return int64(s.cfg.RcvTimeo), nil
	case OptReuseAddr:
		return s.cfg.ReuseAddr, nil
	default:
		return nil, udt.NewError(udt.CategoryInvalidParam, 1, "unknown option")
	}
}

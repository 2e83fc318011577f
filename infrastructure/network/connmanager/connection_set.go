package connmanager

// connectionSet is the connection table: at most one live session per peer
// id. It is mutated only by the ConnectionManager under connectionsLock.
type connectionSet map[string]*session

func (cs connectionSet) add(s *session) {
	cs[s.peer.ID()] = s
}

func (cs connectionSet) remove(s *session) {
	delete(cs, s.peer.ID())
}

func (cs connectionSet) get(peerID string) (*session, bool) {
	s, ok := cs[peerID]
	return s, ok
}

package broker

import "time"

type sinnerState int

const (
	sinnerStriked sinnerState = iota
	sinnerBanned
)

// sinner tracks one IP's standing: either a strike count in
// [0, strike limit] or a ban timestamp. The ban timestamp is required
// for lazy expiry, so "banned" is never encoded as an overflowed strike
// count.
type sinner struct {
	state    sinnerState
	strikes  int
	bannedAt time.Time
}

func newSinner() *sinner {
	return &sinner{state: sinnerStriked}
}

// forgive resets the record to zero strikes.
func (s *sinner) forgive() {
	s.state = sinnerStriked
	s.strikes = 0
	s.bannedAt = time.Time{}
}

// strike records one infraction and reports whether the IP is banned
// afterwards. At the limit the next strike transitions to banned;
// striking an already banned IP changes nothing.
func (s *sinner) strike(limit int, now time.Time) bool {
	if s.state == sinnerBanned {
		return true
	}
	if s.strikes >= limit {
		s.state = sinnerBanned
		s.bannedAt = now
		return true
	}
	s.strikes++
	return false
}

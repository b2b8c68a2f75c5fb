package packetio

import (
	"time"

	"firestige.xyz/upflow/internal/netbuf"
)

// RateLimitedSource paces another source to a fixed packet rate. It
// sleeps before each delivered packet so replayed captures do not
// arrive as one burst. Filtered packets (empty views) are not paced.
type RateLimitedSource struct {
	src      Source
	interval time.Duration
	next     time.Time
	sleep    func(time.Duration)
	now      func() time.Time
}

// NewRateLimitedSource wraps src at pps packets per second. A rate of
// zero or less disables pacing and returns src unchanged.
func NewRateLimitedSource(src Source, pps int) Source {
	if pps <= 0 {
		return src
	}
	return &RateLimitedSource{
		src:      src,
		interval: time.Second / time.Duration(pps),
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

func (s *RateLimitedSource) PacketAvailable() bool { return s.src.PacketAvailable() }

// GetPacket takes the next packet from the wrapped source, then
// delays its delivery until the next slot. The schedule advances per
// delivered packet, so slow consumers catch up instead of drifting
// further behind.
func (s *RateLimitedSource) GetPacket(buf netbuf.WritableView) (netbuf.WritableView, error) {
	pkt, err := s.src.GetPacket(buf)
	if err != nil || pkt.IsEmpty() {
		return pkt, err
	}

	now := s.now()
	if s.next.IsZero() || s.next.Before(now.Add(-s.interval)) {
		s.next = now
	}
	if wait := s.next.Sub(now); wait > 0 {
		s.sleep(wait)
	}
	s.next = s.next.Add(s.interval)
	return pkt, nil
}

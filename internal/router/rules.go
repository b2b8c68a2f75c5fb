package router

import (
	"fmt"
	"strconv"
	"strings"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/decode"
)

// MatchingRule selects IPv4 packets by protocol, destination prefix
// and destination port. Protocol 0 and port 0 are wildcards.
type MatchingRule struct {
	Protocol core.IPv4Protocol
	DstCIDR  core.IPv4CIDR
	DstPort  core.Port
}

// ParseRule parses "<proto|*>-<addr>/<bits>-<port|*>" notation, e.g.
// "17-10.0.0.0/8-2152" or "*-192.168.0.0/16-*".
func ParseRule(s string) (MatchingRule, error) {
	var r MatchingRule

	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return r, fmt.Errorf("%w: %q: want proto-cidr-port", core.ErrInvalidRule, s)
	}

	if parts[0] != "*" {
		n, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil {
			return r, fmt.Errorf("%w: %q: bad protocol %q", core.ErrInvalidRule, s, parts[0])
		}
		r.Protocol = core.IPv4Protocol(n)
	}

	cidr, err := core.ParseIPv4CIDR(parts[1])
	if err != nil {
		return r, fmt.Errorf("%w: %q: %v", core.ErrInvalidRule, s, err)
	}
	r.DstCIDR = cidr

	if parts[2] != "*" {
		n, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return r, fmt.Errorf("%w: %q: bad port %q", core.ErrInvalidRule, s, parts[2])
		}
		// Port 0 is another spelling of the wildcard.
		r.DstPort = core.Port(n)
	}
	return r, nil
}

// String renders the rule back in parseable notation.
func (r MatchingRule) String() string {
	proto := "*"
	if r.Protocol != core.ProtoNone {
		proto = strconv.Itoa(int(r.Protocol))
	}
	port := "*"
	if r.DstPort != core.PortInvalid {
		port = strconv.Itoa(int(r.DstPort))
	}
	return proto + "-" + r.DstCIDR.String() + "-" + port
}

// Match reports whether the rule selects the packet.
func (r MatchingRule) Match(p *decode.IPv4Packet) bool {
	if r.Protocol != core.ProtoNone && p.Protocol() != r.Protocol {
		return false
	}
	if !r.DstCIDR.MatchAddress(p.DstAddr()) {
		return false
	}
	if r.DstPort == core.PortInvalid {
		return true
	}
	switch p.Protocol() {
	case core.ProtoTCP, core.ProtoUDP, core.ProtoSCTP:
	default:
		return false
	}
	// Destination port sits at the same transport header offset for
	// TCP, UDP and SCTP. A truncated payload has no readable port and
	// cannot match.
	port, err := p.Data().Uint16At(2)
	if err != nil {
		return false
	}
	return core.Port(port) == r.DstPort
}

// RuleMatcher holds an ordered rule list and matches packets against
// it first-match-wins.
type RuleMatcher struct {
	rules []MatchingRule
}

// NewRuleMatcher returns a matcher with no rules.
func NewRuleMatcher() *RuleMatcher { return &RuleMatcher{} }

// AddRule inserts a rule at the given position. Positions outside the
// list are clamped to its ends.
func (m *RuleMatcher) AddRule(r MatchingRule, pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(m.rules) {
		pos = len(m.rules)
	}
	m.rules = append(m.rules, MatchingRule{})
	copy(m.rules[pos+1:], m.rules[pos:])
	m.rules[pos] = r
}

// DelRule removes the rule at the given position, if any.
func (m *RuleMatcher) DelRule(pos int) {
	if pos < 0 || pos >= len(m.rules) {
		return
	}
	m.rules = append(m.rules[:pos], m.rules[pos+1:]...)
}

// SetRules replaces the whole rule list.
func (m *RuleMatcher) SetRules(rules []MatchingRule) {
	m.rules = append(m.rules[:0:0], rules...)
}

// Rules returns a copy of the ordered rule list.
func (m *RuleMatcher) Rules() []MatchingRule {
	return append([]MatchingRule(nil), m.rules...)
}

// Match reports whether any rule selects the packet.
func (m *RuleMatcher) Match(p *decode.IPv4Packet) bool {
	for _, r := range m.rules {
		if r.Match(p) {
			return true
		}
	}
	return false
}

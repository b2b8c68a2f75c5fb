// Package router correlates S1AP control traffic into a subscriber
// map and steers user-plane packets by it.
package router

import (
	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/metrics"
)

// UEMap maps a subscriber's IPv4 address to the GTP tunnel endpoints
// of its default bearer.
type UEMap struct {
	m map[core.IPv4Address]core.GTPv1UTunnelInfo
}

// NewUEMap returns an empty subscriber map.
func NewUEMap() *UEMap {
	return &UEMap{m: make(map[core.IPv4Address]core.GTPv1UTunnelInfo)}
}

// Lookup returns the tunnel info for a subscriber address.
func (u *UEMap) Lookup(addr core.IPv4Address) (core.GTPv1UTunnelInfo, bool) {
	t, ok := u.m[addr]
	return t, ok
}

// Contains reports whether a subscriber address is attached.
func (u *UEMap) Contains(addr core.IPv4Address) bool {
	_, ok := u.m[addr]
	return ok
}

// Upsert inserts or overwrites the tunnel info for a subscriber.
func (u *UEMap) Upsert(addr core.IPv4Address, t core.GTPv1UTunnelInfo) {
	u.m[addr] = t
	metrics.UEMapUpsertsTotal.Inc()
	metrics.UEMapSize.Set(float64(len(u.m)))
}

// Delete detaches a subscriber.
func (u *UEMap) Delete(addr core.IPv4Address) {
	delete(u.m, addr)
	metrics.UEMapSize.Set(float64(len(u.m)))
}

// Len returns the number of attached subscribers.
func (u *UEMap) Len() int { return len(u.m) }

// Range calls fn for every subscriber until it returns false.
func (u *UEMap) Range(fn func(addr core.IPv4Address, t core.GTPv1UTunnelInfo) bool) {
	for addr, t := range u.m {
		if !fn(addr, t) {
			return
		}
	}
}

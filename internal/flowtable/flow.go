// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

import (
	"fmt"
	"net/netip"
	"time"

	"grimm.is/flowtrack/internal/errors"
)

// FlowKey identifies a flow by its local and remote IPv4 endpoints.
// Local and remote are distinct roles: swapping them yields a different key.
type FlowKey struct {
	LocalAddr  uint32 `json:"local_addr"`
	RemoteAddr uint32 `json:"remote_addr"`
	LocalPort  uint16 `json:"local_port"`
	RemotePort uint16 `json:"remote_port"`
}

// NewFlowKey builds a key from two IPv4 address/port pairs.
func NewFlowKey(local, remote netip.AddrPort) (FlowKey, error) {
	if !local.Addr().Is4() || !remote.Addr().Is4() {
		return FlowKey{}, errors.Errorf(errors.KindValidation,
			"flow endpoints must be IPv4: %s -> %s", local, remote)
	}
	return FlowKey{
		LocalAddr:  addrToU32(local.Addr()),
		RemoteAddr: addrToU32(remote.Addr()),
		LocalPort:  local.Port(),
		RemotePort: remote.Port(),
	}, nil
}

// Local returns the local endpoint.
func (k FlowKey) Local() netip.AddrPort {
	return netip.AddrPortFrom(u32ToAddr(k.LocalAddr), k.LocalPort)
}

// Remote returns the remote endpoint.
func (k FlowKey) Remote() netip.AddrPort {
	return netip.AddrPortFrom(u32ToAddr(k.RemoteAddr), k.RemotePort)
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s -> %s", k.Local(), k.Remote())
}

func addrToU32(a netip.Addr) uint32 {
	b := a.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func u32ToAddr(ip uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)})
}

// FlowInfo is the per-flow scheduling state. The zero value is the initial state.
type FlowInfo struct {
	LatestUpdateTime  time.Time `json:"latest_update_time"`
	LatestTimeoutTime time.Time `json:"latest_timeout_time"`
	LatestTimeoutSeq  uint32    `json:"latest_timeout_seq"`
	LatestSeq         uint32    `json:"latest_seq"`
	LatestAck         uint32    `json:"latest_ack"`
	BytesSent         uint32    `json:"bytes_sent"`
	BytesTotal        uint32    `json:"bytes_total"`
	Timeouts          uint32    `json:"timeouts"`
	IsSizeKnown       bool      `json:"is_size_known"`
	IsDeadlineKnown   bool      `json:"is_deadline_known"`
}

// Category classifies a flow by what the scheduler knows about it.
type Category uint8

const (
	CategoryDeadline Category = iota
	CategorySizeKnown
	CategorySizeUnknown

	// NumCategories is the number of flow categories.
	NumCategories = 3
)

func (c Category) String() string {
	switch c {
	case CategoryDeadline:
		return "deadline"
	case CategorySizeKnown:
		return "size_known"
	case CategorySizeUnknown:
		return "size_unknown"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// minMagnitude keeps non-deadline magnitudes away from 0 and 1.
const minMagnitude = 2

// Category reports the flow's category. A known deadline takes precedence
// over a known size.
func (i *FlowInfo) Category() Category {
	switch {
	case i.IsDeadlineKnown:
		return CategoryDeadline
	case i.IsSizeKnown:
		return CategorySizeKnown
	default:
		return CategorySizeUnknown
	}
}

// Classify returns the category and the magnitude reported when the flow is
// removed: 1 for deadline flows, max(2, BytesTotal) for size-known flows and
// max(2, BytesSent) otherwise.
func (i *FlowInfo) Classify() (Category, uint32) {
	cat := i.Category()
	switch cat {
	case CategoryDeadline:
		return cat, 1
	case CategorySizeKnown:
		return cat, max(minMagnitude, i.BytesTotal)
	default:
		return cat, max(minMagnitude, i.BytesSent)
	}
}

// Record is a tracked flow. Records are owned by the table; callers only see
// them through Search handles, Update closures and Walk.
type Record struct {
	Key  FlowKey
	Info FlowInfo
}

func (r *Record) String() string {
	return r.Key.String()
}

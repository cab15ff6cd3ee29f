package service

import (
	"fmt"
	"sync/atomic"
)

// RoundRobinAddressBook hands out configured backend addresses in
// rotation for admin pass-through calls, which are equivalent regardless
// of which live node serves them.
type RoundRobinAddressBook struct {
	addrs []string
	next  uint64
}

// NewRoundRobinAddressBook creates an AddressBook over a fixed address
// list.
func NewRoundRobinAddressBook(addrs []string) *RoundRobinAddressBook {
	cp := make([]string, len(addrs))
	copy(cp, addrs)
	return &RoundRobinAddressBook{addrs: cp}
}

// Any returns the next address in rotation.
func (b *RoundRobinAddressBook) Any() (string, error) {
	if len(b.addrs) == 0 {
		return "", fmt.Errorf("no backend addresses configured")
	}
	i := atomic.AddUint64(&b.next, 1) - 1
	return b.addrs[i%uint64(len(b.addrs))], nil
}

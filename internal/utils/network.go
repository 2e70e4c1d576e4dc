package utils

import "github.com/vishvananda/netlink"

// LoopbackUp brings the loopback interface up, the boot image never does.
func LoopbackUp() error {
	lo, err := netlink.LinkByName("lo")
	if err != nil {
		return err
	}
	return netlink.LinkSetUp(lo)
}

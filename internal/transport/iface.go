package transport

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/dep2p/go-mdns/pkg/types"
)

// selectInterfaces 按名字选择网卡；names 为空时选择全部已启用且支持组播的网卡
func selectInterfaces(all []net.Interface, names []string) ([]net.Interface, error) {
	usable := func(ifi net.Interface) bool {
		return ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0
	}

	var out []net.Interface
	if len(names) == 0 {
		for _, ifi := range all {
			if usable(ifi) {
				out = append(out, ifi)
			}
		}
		if len(out) == 0 {
			return nil, ErrNoInterface
		}
		return out, nil
	}

	for _, name := range names {
		found := false
		for _, ifi := range all {
			if ifi.Name != name {
				continue
			}
			found = true
			if !usable(ifi) {
				return nil, fmt.Errorf("%w: %s is down or lacks multicast", ErrNoInterface, name)
			}
			out = append(out, ifi)
			break
		}
		if !found {
			return nil, fmt.Errorf("%w: unknown interface %q", ErrNoInterface, name)
		}
	}
	return out, nil
}

// interfaceIDs 网卡序号即接口标识
func interfaceIDs(ifaces []net.Interface) []types.InterfaceID {
	ids := make([]types.InterfaceID, 0, len(ifaces))
	for _, ifi := range ifaces {
		ids = append(ids, types.InterfaceID(ifi.Index))
	}
	return ids
}

// localAddrs 收集网卡上的本机地址
func localAddrs(ifaces []net.Interface) map[netip.Addr]struct{} {
	out := make(map[netip.Addr]struct{})
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			logger.Debug("获取网卡地址失败", "iface", ifaces[i].Name, "err", err)
			continue
		}
		for _, a := range addrs {
			if p, err := netip.ParsePrefix(a.String()); err == nil {
				out[p.Addr().Unmap()] = struct{}{}
			}
		}
	}
	return out
}

package tool

import "net"

func GetLocalIPv4Set() map[string]struct{} {
	result := make(map[string]struct{})

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return result
	}

	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}

		ip := ipnet.IP
		if ip == nil || ip.IsLoopback() {
			continue
		}

		ipv4 := ip.To4()
		if ipv4 == nil {
			continue
		}

		result[ipv4.String()] = struct{}{}
	}

	return result
}

// PrimaryIPv4 returns one non-loopback IPv4 address of this host, or 127.0.0.1.
func PrimaryIPv4() string {
	var best string
	for ip := range GetLocalIPv4Set() {
		if best == "" || ip < best {
			best = ip
		}
	}
	if best == "" {
		return "127.0.0.1"
	}
	return best
}

package common

import "net"

// GetLocalIPs returns the addresses the server can be reached on:
// localhost, the loopback address and the first non-loopback IPv4 address.
func GetLocalIPs() []string {
	ips := []string{"localhost", "127.0.0.1"}

	interfaces, err := net.Interfaces()
	if err != nil {
		return ips
	}

	for _, i := range interfaces {
		if i.Flags&net.FlagLoopback != 0 ||
			i.Flags&net.FlagUp == 0 ||
			i.Flags&net.FlagPointToPoint != 0 {
			continue
		}

		addrs, err := i.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
				continue
			}
			return append(ips, ipnet.IP.String())
		}
	}
	return ips
}

// Package network finds the addresses visitors on the local network can use
// to reach the upload server.
package network

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/jackpal/gateway"
)

// ErrNoAddress is returned when no usable IPv4 address was found.
var ErrNoAddress = errors.New("no usable IPv4 address")

// routeAddr is only used to pick a route; UDP "connect" sends nothing.
const routeAddr = "192.0.2.1:9"

var (
	discoverGateway = gateway.DiscoverGateway
	interfaceAddrs  = upInterfaceAddrs
	routeIP         = udpRouteIP
)

// LocalIP returns the IPv4 address of this host on the LAN.
//
// It prefers the address on the same subnet as the default gateway, then the
// source address the kernel would route outbound traffic from, then the first
// global unicast IPv4 address on an interface that is up.
func LocalIP() (net.IP, error) {
	addrs, err := interfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("local ip: %w", err)
	}

	if gw, err := discoverGateway(); err == nil {
		if ip, ok := addrForGateway(gw, addrs); ok {
			return ip, nil
		}
		slog.Debug("no interface on gateway subnet", "gateway", gw)
	} else {
		slog.Debug("gateway discovery failed", "err", err)
	}

	if ip, err := routeIP(); err == nil && usable(ip) {
		return ip.To4(), nil
	}

	if ip, ok := firstUsable(addrs); ok {
		return ip, nil
	}

	return nil, fmt.Errorf("local ip: %w", ErrNoAddress)
}

// URLs lists the upload page addresses for a server listening on host:port.
// A wildcard host yields localhost plus the LAN address when lan is not nil.
func URLs(host string, port int, lan net.IP) []string {
	p := strconv.Itoa(port)
	url := func(h string) string {
		return "http://" + net.JoinHostPort(h, p) + "/"
	}

	if !isWildcard(host) {
		return []string{url(host)}
	}

	urls := []string{url("localhost")}
	if lan != nil {
		urls = append(urls, url(lan.String()))
	}
	return urls
}

func isWildcard(host string) bool {
	if host == "" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsUnspecified()
}

func addrForGateway(gw net.IP, addrs []net.Addr) (net.IP, bool) {
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || !usable(ipnet.IP) {
			continue
		}
		if ipnet.Contains(gw) {
			return ipnet.IP.To4(), true
		}
	}
	return nil, false
}

func firstUsable(addrs []net.Addr) (net.IP, bool) {
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if ok && usable(ipnet.IP) {
			return ipnet.IP.To4(), true
		}
	}
	return nil, false
}

func usable(ip net.IP) bool {
	v4 := ip.To4()
	return v4 != nil && v4.IsGlobalUnicast() && !v4.IsLoopback()
}

func upInterfaceAddrs() ([]net.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var addrs []net.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			slog.Warn("failed to read interface addresses", "interface", iface.Name, "err", err)
			continue
		}
		addrs = append(addrs, ifaceAddrs...)
	}
	return addrs, nil
}

func udpRouteIP() (net.IP, error) {
	conn, err := net.Dial("udp4", routeAddr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, ErrNoAddress
	}
	return addr.IP, nil
}

package types

import (
	"fmt"
	"net"
	"strconv"
)

// DeviceInfo is the identity a peer advertises on the wire (v1 info / send-request).
type DeviceInfo struct {
	Alias       string `json:"alias"`
	DeviceModel string `json:"deviceModel,omitempty"`
	DeviceType  string `json:"deviceType,omitempty"`
}

// Device is a peer as seen by one session: its advertised identity plus where to reach it.
type Device struct {
	DeviceInfo
	IP    string `json:"ip"`
	Port  int    `json:"port"`
	Https bool   `json:"https"`
}

// Protocol returns "https" or "http".
func (d Device) Protocol() string {
	if d.Https {
		return "https"
	}
	return "http"
}

// BaseURL returns protocol://ip:port without trailing slash.
func (d Device) BaseURL() string {
	return fmt.Sprintf("%s://%s", d.Protocol(), net.JoinHostPort(d.IP, strconv.Itoa(d.Port)))
}

// InfoResponse is returned by GET /info.
type InfoResponse struct {
	Alias       string `json:"alias"`
	DeviceModel string `json:"deviceModel"`
	DeviceType  string `json:"deviceType"`
}

// SelfDevice is the local identity: what we advertise plus how we are reachable.
type SelfDevice struct {
	DeviceInfo
	Fingerprint string `json:"fingerprint"`
	Port        int    `json:"port"`
	Https       bool   `json:"https"`
}

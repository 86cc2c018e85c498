package tool

import (
	"net/url"

	"github.com/moyoez/localsend-session/types"
)

const APIPrefix = "/api/localsend/v1"

func buildURL(remote types.Device, path string, query url.Values) string {
	u := remote.BaseURL() + APIPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// BuildInfoURL builds the /info URL carrying our fingerprint for self-discovery suppression.
func BuildInfoURL(remote types.Device, fingerprint string) string {
	q := url.Values{}
	if fingerprint != "" {
		q.Set("fingerprint", fingerprint)
	}
	return buildURL(remote, "/info", q)
}

// BuildSendRequestURL builds the /send-request URL.
func BuildSendRequestURL(remote types.Device) string {
	return buildURL(remote, "/send-request", nil)
}

// BuildSendURL builds the /send URL with fileId and token query parameters.
func BuildSendURL(remote types.Device, fileId, token string) string {
	return buildURL(remote, "/send", url.Values{"fileId": {fileId}, "token": {token}})
}

// BuildCancelURL builds the /cancel URL.
func BuildCancelURL(remote types.Device) string {
	return buildURL(remote, "/cancel", nil)
}

// SelfURL is how peers on the LAN reach us.
func SelfURL(self types.SelfDevice) string {
	return types.Device{IP: PrimaryIPv4(), Port: self.Port, Https: self.Https}.BaseURL()
}

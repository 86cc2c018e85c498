package tool

import (
	"crypto/tls"
	"io"
	"net/http"
	"time"
)

var (
	DefaultTimeout = 30 * time.Second
	// ConnectionHttpClient is used for short calls (info, cancel).
	ConnectionHttpClient *http.Client
	// TransferHttpClient has no overall timeout: send-request waits for a human and uploads stream large bodies.
	TransferHttpClient *http.Client
)

func init() {
	ConnectionHttpClient = NewHTTPClient(DefaultTimeout)
	TransferHttpClient = NewHTTPClient(0)
}

// NewHTTPClient creates an HTTP client, skipping self-signed certificate verification in HTTPS mode.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 0,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func GetHttpClient() *http.Client {
	return ConnectionHttpClient
}

func GetTransferHttpClient() *http.Client {
	return TransferHttpClient
}

// NewHTTPReqWithApplication sets the JSON content type on a freshly built request.
func NewHTTPReqWithApplication(req *http.Request, err error) (*http.Request, error) {
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// CloseBody closes an HTTP body and logs failures.
func CloseBody(body io.Closer) {
	if err := body.Close(); err != nil {
		DefaultLogger.Errorf("Failed to close response body: %v", err)
	}
}

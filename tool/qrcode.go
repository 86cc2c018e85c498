package tool

import "github.com/skip2/go-qrcode"

// TerminalQRCode renders data as a QR code made of block characters.
func TerminalQRCode(data string) (string, error) {
	q, err := qrcode.New(data, qrcode.Low)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}

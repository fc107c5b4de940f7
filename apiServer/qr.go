package apiServer

import "errors"

// ErrQRUnavailable is returned by the default codec: the trust core never
// touches pixels, so QR work only happens when a real codec is injected.
var ErrQRUnavailable = errors.New("apiServer: no QR codec configured")

// ErrNoQRCode is returned by Decode when the image holds no readable
// code, as opposed to the codec being unable to run at all.
var ErrNoQRCode = errors.New("apiServer: no QR code detected")

// QRCodec is the binary image boundary: encoding a capsule URL into PNG
// bytes and decoding uploaded image bytes back into the embedded URL.
type QRCodec interface {
	Encode(url string) ([]byte, error)
	Decode(image []byte) (string, error)
}

type unavailableCodec struct{}

func (unavailableCodec) Encode(string) ([]byte, error) { return nil, ErrQRUnavailable }
func (unavailableCodec) Decode([]byte) (string, error) { return "", ErrQRUnavailable }

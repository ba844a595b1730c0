//go:build !govips || !cgo

package codec

func Startup() error {
	return nil
}

func Shutdown() {}

// New returns the codec selected at build time.
func New() Codec {
	return ImagingCodec{}
}

// Backend names the codec selected at build time.
func Backend() string {
	return "imaging"
}

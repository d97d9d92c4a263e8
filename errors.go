package sensitive

import "errors"

var (
	// ErrModelLoad wraps failures of the inference model construction.
	ErrModelLoad = errors.New("sensitive: model load failed")

	ErrUnsupportedArch   = errors.New("sensitive: unsupported cpu architecture")
	ErrEmptyInput        = errors.New("sensitive: empty input")
	ErrProxyStatus       = errors.New("sensitive: proxy returned non-2xx status")
	ErrMalformedResponse = errors.New("sensitive: malformed proxy response")
	ErrSettings          = errors.New("sensitive: invalid settings")
)

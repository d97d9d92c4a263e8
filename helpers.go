package sensitive

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// maxProxyURLLength matches the width of the stored settings column.
const maxProxyURLLength = 1024

// EncodeBase64 encodes bytes to base64 string.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a standard base64 string.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// ValidateProxyURL accepts "" (local mode) or an absolute http(s) URL of at
// most 1024 characters.
func ValidateProxyURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if len(raw) > maxProxyURLLength {
		return fmt.Errorf("%w: proxy url longer than %d characters", ErrSettings, maxProxyURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: proxy url: %w", ErrSettings, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: proxy url must be an absolute http(s) url", ErrSettings)
	}
	return nil
}

package translator

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

var errBadDataURL = errors.New("malformed data URL")

// parseDataURL decodes data:[<mediatype>][;base64],<payload>.
func parseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, errBadDataURL
	}

	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errBadDataURL
	}

	params := strings.Split(header, ";")
	mediaType := strings.TrimSpace(params[0])
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := decodeBase64(payload)
		if err != nil {
			return "", nil, err
		}
		return mediaType, data, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, errBadDataURL
	}
	return mediaType, []byte(decoded), nil
}

// decodeBase64 accepts padded or unpadded, standard or URL-safe alphabets.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

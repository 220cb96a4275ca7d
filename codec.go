package weave

import (
	"strings"
)

// Codec provides content-type aware marshaling. ContractCodec embeds values
// encoded by a Codec in weave documents.
type Codec interface {
	// ContentType returns the MIME type for this codec (e.g., "application/json").
	ContentType() string

	// Marshal encodes v into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v.
	Unmarshal(data []byte, v any) error
}

// textual reports whether a content type is character data that can be
// embedded as element text without base64.
func textual(contentType string) bool {
	ct, _, _ := strings.Cut(contentType, ";")
	ct = strings.TrimSpace(strings.ToLower(ct))
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	for _, suffix := range []string{"/json", "+json", "/xml", "+xml", "/yaml", "+yaml", "/x-yaml"} {
		if strings.HasSuffix(ct, suffix) {
			return true
		}
	}
	return false
}

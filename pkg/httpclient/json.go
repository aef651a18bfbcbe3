package httpclient

import (
	"bytes"
	"encoding/json"
)

// decodeJSON tolerates a UTF-8 byte order mark, which some portals prepend.
func decodeJSON(body []byte, out interface{}) error {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	return json.Unmarshal(body, out)
}

package journal

import (
	"encoding/base64"
	"encoding/json"
)

// cursor is the decoded form of a next_token. Partition names the day or month
// to resume in; SortKey is the store continuation inside it, empty when the
// cursor marks the start of the partition. PK is only kept for secondary index
// continuations, which need the base table key.
type cursor struct {
	Partition string `json:"p,omitempty"`
	SortKey   string `json:"k,omitempty"`
	PK        string `json:"pk,omitempty"`
}

func (c cursor) encode() string {
	payload, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(payload)
}

func decodeCursor(raw string) (cursor, error) {
	payload, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return cursor{}, validationError("invalid next_token")
	}
	var decoded cursor
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return cursor{}, validationError("invalid next_token")
	}
	if decoded.Partition == "" && decoded.SortKey == "" {
		return cursor{}, validationError("invalid next_token")
	}
	return decoded, nil
}

package poller

import (
	"bytes"
	"encoding/json"
)

// ShallowEqual compares two payloads one level deep: objects are equal when
// they have the same top-level keys and each key's encoded value matches.
// Anything that does not encode to an object is compared by its encoding.
func ShallowEqual(a, b any) bool {
	ra, err := json.Marshal(a)
	if err != nil {
		return false
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false
	}

	if !isObject(ra) || !isObject(rb) {
		return bytes.Equal(ra, rb)
	}
	var ma, mb map[string]json.RawMessage
	if json.Unmarshal(ra, &ma) != nil || json.Unmarshal(rb, &mb) != nil {
		return false
	}
	if len(ma) != len(mb) {
		return false
	}
	for key, va := range ma {
		vb, ok := mb[key]
		if !ok || !bytes.Equal(va, vb) {
			return false
		}
	}
	return true
}

func isObject(raw []byte) bool {
	return len(raw) > 0 && raw[0] == '{'
}

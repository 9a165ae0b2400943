package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is an opaque record identifier. The remote API emits numeric ids while
// route parameters and cached payloads carry strings, so both decode to the
// same textual form and compare by equality only.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the textual form.
func (id ID) String() string {
	return string(id)
}

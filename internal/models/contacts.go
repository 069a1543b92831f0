package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ContactList is the ordered list of emergency-contact addresses.
// It is stored as a JSON array; older rows holding a comma-delimited
// string are accepted on read and rewritten as JSON on the next save.
type ContactList []string

// ParseContactList is the canonical parser for stored contact values
func ParseContactList(raw string) (ContactList, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ContactList{}, nil
	}
	if strings.HasPrefix(raw, "[") {
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("invalid contact list: %w", err)
		}
		return normalizeContacts(list), nil
	}
	return normalizeContacts(strings.Split(raw, ",")), nil
}

// Format is the canonical serialization of a contact list
func (c ContactList) Format() string {
	if c == nil {
		return "[]"
	}
	b, _ := json.Marshal([]string(c))
	return string(b)
}

func (c ContactList) Value() (driver.Value, error) {
	return c.Format(), nil
}

func (c *ContactList) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*c = ContactList{}
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("unsupported type for ContactList: %T", value)
	}

	list, err := ParseContactList(raw)
	if err != nil {
		return err
	}
	*c = list
	return nil
}

// Contains reports whether address is already in the list
func (c ContactList) Contains(address string) bool {
	for _, a := range c {
		if a == address {
			return true
		}
	}
	return false
}

func normalizeContacts(in []string) ContactList {
	out := make(ContactList, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package irc

import (
	"strings"
)

const (
	tagDelimiter      = ";"
	keyValueDelimiter = "="
)

// tag is a single entry of Tags. A nil value means the tag has no value,
// which is distinct from an empty one.
type tag struct {
	key   string
	value *string
}

// Tags is the IRCv3 message-tags block of a message: an ordered mapping of
// tag names to optional values.
//
// The zero value is an empty set of tags ready to use.
type Tags struct {
	entries []tag
	index   map[string]int
}

// ParseTags parses a tags block without its leading '@', such as
// "badge-info=;color=#0000FF;mod". Empty segments are skipped. A tag with an
// empty or whitespace-only name, or a name given twice, is an error. Empty
// or whitespace-only values are stored as absent.
func ParseTags(s string) (Tags, error) {
	var tags Tags
	for _, raw := range strings.Split(s, tagDelimiter) {
		if isBlank(raw) {
			continue
		}

		key, value, hasValue := strings.Cut(raw, keyValueDelimiter)
		if isBlank(key) {
			return Tags{}, invalidMessage("tag %q has no name", raw)
		}
		if tags.Has(key) {
			return Tags{}, invalidMessage("duplicate tag %q", key)
		}

		if hasValue && !isBlank(value) {
			tags.Set(key, value)
		} else {
			tags.SetAbsent(key)
		}
	}

	return tags, nil
}

// Set stores key with value. An existing key keeps its position.
func (t *Tags) Set(key, value string) {
	t.set(key, &value)
}

// SetAbsent stores key without a value.
func (t *Tags) SetAbsent(key string) {
	t.set(key, nil)
}

func (t *Tags) set(key string, value *string) {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if i, ok := t.index[key]; ok {
		t.entries[i].value = value
		return
	}
	t.index[key] = len(t.entries)
	t.entries = append(t.entries, tag{key: key, value: value})
}

// Get returns the value of key. ok is false when the key is missing or has
// no value; use Has to tell those apart.
func (t Tags) Get(key string) (value string, ok bool) {
	i, found := t.index[key]
	if !found || t.entries[i].value == nil {
		return "", false
	}
	return *t.entries[i].value, true
}

// Has reports whether key is present, with or without a value.
func (t Tags) Has(key string) bool {
	_, ok := t.index[key]
	return ok
}

// Delete removes key, keeping the order of the remaining tags.
func (t *Tags) Delete(key string) {
	i, ok := t.index[key]
	if !ok {
		return
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	delete(t.index, key)
	for j := i; j < len(t.entries); j++ {
		t.index[t.entries[j].key] = j
	}
}

// Keys returns the tag names in insertion order.
func (t Tags) Keys() []string {
	keys := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		keys = append(keys, e.key)
	}
	return keys
}

// Len returns the number of tags.
func (t Tags) Len() int {
	return len(t.entries)
}

// String joins the tags as "k=v;k=v" without the leading '@'. A tag without
// a value is written as "k=".
func (t Tags) String() string {
	var b strings.Builder
	for i, e := range t.entries {
		if i > 0 {
			b.WriteString(tagDelimiter)
		}
		b.WriteString(e.key)
		b.WriteString(keyValueDelimiter)
		if e.value != nil {
			b.WriteString(*e.value)
		}
	}
	return b.String()
}

// clone returns a copy that shares no state with t.
func (t Tags) clone() Tags {
	var c Tags
	for _, e := range t.entries {
		c.set(e.key, e.value)
	}
	return c
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

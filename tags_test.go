package irc

import (
	"errors"
	"strings"
	"testing"
)

func TestParseTags(t *testing.T) {
	tags, err := ParseTags("badge-info=;badges=broadcaster/1;color=#0000FF;mod;;subscriber= ")
	if err != nil {
		t.Fatalf("ParseTags failed: %v", err)
	}

	if got := strings.Join(tags.Keys(), ","); got != "badge-info,badges,color,mod,subscriber" {
		t.Errorf("Keys() = %q", got)
	}
	if v, ok := tags.Get("badges"); !ok || v != "broadcaster/1" {
		t.Errorf("Get(badges) = %q, %v", v, ok)
	}
	for _, key := range []string{"badge-info", "mod", "subscriber"} {
		if !tags.Has(key) {
			t.Errorf("Has(%s) = false, want true", key)
		}
		if _, ok := tags.Get(key); ok {
			t.Errorf("Get(%s) has a value, want absent", key)
		}
	}
	if tags.Has("missing") {
		t.Error("Has(missing) = true")
	}
}

func TestParseTags_ValueWithEquals(t *testing.T) {
	tags, err := ParseTags("msg=a=b")
	if err != nil {
		t.Fatalf("ParseTags failed: %v", err)
	}
	if v, _ := tags.Get("msg"); v != "a=b" {
		t.Errorf("Get(msg) = %q, want a=b", v)
	}
}

func TestParseTags_Empty(t *testing.T) {
	tags, err := ParseTags(";;")
	if err != nil {
		t.Fatalf("ParseTags failed: %v", err)
	}
	if tags.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tags.Len())
	}
	if tags.String() != "" {
		t.Errorf("String() = %q, want empty", tags.String())
	}
}

func TestParseTags_BlankKey(t *testing.T) {
	for _, s := range []string{"=1", " =1", "a=1;=2"} {
		if _, err := ParseTags(s); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("ParseTags(%q) error = %v, want ErrInvalidMessage", s, err)
		}
	}
}

func TestParseTags_DuplicateKey(t *testing.T) {
	for _, s := range []string{"a=1;a=2", "a;a", "mod=1;color=red;mod="} {
		if _, err := ParseTags(s); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("ParseTags(%q) error = %v, want ErrInvalidMessage", s, err)
		}
	}

	if _, err := Parse("@a=1;a=2 PING"); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Parse with duplicate tags error = %v, want ErrInvalidMessage", err)
	}
}

func TestTags_SetKeepsPosition(t *testing.T) {
	var tags Tags
	tags.Set("a", "1")
	tags.Set("b", "2")
	tags.Set("a", "3")

	if got := tags.String(); got != "a=3;b=2" {
		t.Errorf("String() = %q, want a=3;b=2", got)
	}

	tags.SetAbsent("b")
	if got := tags.String(); got != "a=3;b=" {
		t.Errorf("String() = %q, want a=3;b=", got)
	}
}

func TestTags_Delete(t *testing.T) {
	var tags Tags
	tags.Set("a", "1")
	tags.Set("b", "2")
	tags.Set("c", "3")

	tags.Delete("b")
	tags.Delete("missing")

	if got := strings.Join(tags.Keys(), ","); got != "a,c" {
		t.Errorf("Keys() = %q, want a,c", got)
	}
	if v, _ := tags.Get("c"); v != "3" {
		t.Errorf("Get(c) = %q after delete", v)
	}

	tags.Set("b", "4")
	if got := tags.String(); got != "a=1;c=3;b=4" {
		t.Errorf("String() = %q", got)
	}
}

func TestTags_ZeroValue(t *testing.T) {
	var tags Tags

	if tags.Len() != 0 || tags.Has("a") || len(tags.Keys()) != 0 {
		t.Error("zero Tags is not empty")
	}
	if _, ok := tags.Get("a"); ok {
		t.Error("Get on zero Tags reported a value")
	}
}

func TestTags_CloneIsIndependent(t *testing.T) {
	var tags Tags
	tags.Set("a", "1")

	m := NewMessage(CommandPing, WithTags(tags))
	tags.Set("a", "2")
	tags.Set("b", "3")

	if got := m.Tags.String(); got != "a=1" {
		t.Errorf("message tags = %q, want a=1", got)
	}
}

package telegram

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"no limit", "hello", 0, []string{"hello"}},
		{"hard cut", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"newline cut", "abc\ndefgh", 6, []string{"abc", "defgh"}},
		{"runes", "你好世界再見", 4, []string{"你好世界", "再見"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMessage(tt.text, tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitMessage(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
		})
	}
}

func TestSplitMessage_RespectsLimit(t *testing.T) {
	text := strings.Repeat("line of text\n", 50)
	for _, part := range splitMessage(text, 40) {
		if n := len([]rune(part)); n > 40 {
			t.Fatalf("part has %d runes", n)
		}
	}
}

func TestParseConfig(t *testing.T) {
	t.Setenv("TG_TEST_TOKEN", "123:abc")
	cfg, err := parseConfig([]byte(`{"token":"$TG_TEST_TOKEN","allowed_users":[7]}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "123:abc" || len(cfg.AllowedUsers) != 1 {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := parseConfig([]byte(`{}`)); err == nil {
		t.Error("missing token should fail")
	}
	if _, err := parseConfig([]byte(`nope`)); err == nil {
		t.Error("broken json should fail")
	}
}

func TestAllowed(t *testing.T) {
	open := &TelegramChannel{}
	if !open.allowed(1) {
		t.Error("empty allow list should allow everyone")
	}
	closed := &TelegramChannel{config: TelegramConfig{AllowedUsers: []int64{5}}}
	if closed.allowed(1) || !closed.allowed(5) {
		t.Error("allow list mismatch")
	}
}

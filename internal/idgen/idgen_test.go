package idgen

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestConfigID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^cfg_[a-zA-Z0-9]{12}$`)
	for i := 0; i < 100; i++ {
		id, err := ConfigID()
		if err != nil {
			t.Fatalf("ConfigID() error on iteration %d: %v", i, err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("ConfigID() = %q, does not match expected pattern", id)
		}
	}
}

func TestConfigID_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := ConfigID()
		if err != nil {
			t.Fatalf("ConfigID() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q after %d generations", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestUserToken_EmbedsIssueTime(t *testing.T) {
	now := time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)
	token, err := UserToken(now)
	if err != nil {
		t.Fatalf("UserToken() error: %v", err)
	}

	stamp := strconv.FormatInt(now.UnixMilli(), 36)
	if !strings.HasPrefix(token, stamp) {
		t.Errorf("UserToken() = %q, want prefix %q", token, stamp)
	}
	if got := len(token) - len(stamp); got != TokenLength {
		t.Errorf("random suffix length = %d, want %d", got, TokenLength)
	}
	if strings.Contains(token, ":") {
		t.Errorf("UserToken() = %q must not contain ':'", token)
	}
}

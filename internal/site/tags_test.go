// SPDX-License-Identifier: MPL-2.0

package site

import (
	"testing"
	"time"
)

func TestDateFromTag(t *testing.T) {
	t.Parallel()

	got, ok := DateFromTag("2023-04-09-db9a92f")
	if !ok || !got.Equal(time.Date(2023, 4, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DateFromTag() = %v, %v", got, ok)
	}
	for _, bad := range []string{"latest", "2023-04", "2023-13-01-abc", "v1-2-3"} {
		if _, ok := DateFromTag(bad); ok {
			t.Errorf("DateFromTag(%q) should fail", bad)
		}
	}
}

func TestCommitFromTag(t *testing.T) {
	t.Parallel()

	if got := CommitFromTag("2023-04-09-db9a92f"); got != "db9a92f" {
		t.Errorf("CommitFromTag() = %q", got)
	}
	if got := CommitFromTag("latest"); got != "" {
		t.Errorf("CommitFromTag(latest) = %q", got)
	}
}

func TestTimeAgo(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "today"},
		{-3 * day, "today"},
		{day, "yesterday"},
		{10 * day, "10 days ago"},
		{90 * day, "3 months ago"},
		{800 * day, "2 years ago"},
	}
	for _, tt := range tests {
		if got := TimeAgo(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("TimeAgo(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}

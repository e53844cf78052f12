// SPDX-License-Identifier: MPL-2.0

package site

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateFromTag returns the build date of a tag like 2023-04-09-db9a92f.
func DateFromTag(tag string) (time.Time, bool) {
	parts := strings.Split(tag, "-")
	if len(parts) < 3 {
		return time.Time{}, false
	}
	var ymd [3]int
	for i := range ymd {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return time.Time{}, false
		}
		ymd[i] = n
	}
	if ymd[1] < 1 || ymd[1] > 12 || ymd[2] < 1 || ymd[2] > 31 {
		return time.Time{}, false
	}
	return time.Date(ymd[0], time.Month(ymd[1]), ymd[2], 0, 0, 0, 0, time.UTC), true
}

// CommitFromTag returns the abbreviated commit of a tag like 2023-04-09-db9a92f.
func CommitFromTag(tag string) string {
	parts := strings.Split(tag, "-")
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

// TimeAgo describes date relative to now in days, months or years.
func TimeAgo(date, now time.Time) string {
	days := int(now.Sub(date).Hours() / 24)
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "yesterday"
	case days < 50:
		return fmt.Sprintf("%d days ago", days)
	case days < 700:
		return fmt.Sprintf("%d months ago", days/30)
	default:
		return fmt.Sprintf("%d years ago", days/365)
	}
}

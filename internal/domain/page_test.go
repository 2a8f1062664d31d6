package domain

import (
	"testing"
	"time"
)

func TestPageLimitsClamp(t *testing.T) {
	limits := PageLimits{Default: 20, Max: 100}
	tests := []struct {
		in, want int
	}{
		{in: 0, want: 20},
		{in: -5, want: 20},
		{in: 7, want: 7},
		{in: 500, want: 100},
	}
	for _, tt := range tests {
		if got := limits.Clamp(tt.in); got != tt.want {
			t.Fatalf("Clamp(%d): ожидали %d, получили %d", tt.in, tt.want, got)
		}
	}
}

func TestTrimPage(t *testing.T) {
	now := time.Now()
	posts := []Post{{ID: 3, CreatedAt: now}, {ID: 2, CreatedAt: now}, {ID: 1, CreatedAt: now}}

	items, next := TrimPage(posts, 2, PostCursor)
	if len(items) != 2 || next == "" {
		t.Fatalf("ожидали 2 элемента и курсор, получили %d и %q", len(items), next)
	}
	c, err := DecodeCursor(next)
	if err != nil || c.ID != 2 {
		t.Fatalf("курсор должен указывать на последний выданный пост: %+v, %v", c, err)
	}

	items, next = TrimPage(posts, 3, PostCursor)
	if len(items) != 3 || next != "" {
		t.Fatalf("последняя страница не должна иметь курсор")
	}
}

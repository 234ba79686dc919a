package app

import (
	"testing"
)

func TestParseCommand_DefaultsToPosts(t *testing.T) {
	cmd := ParseCommand([]string{})
	if cmd != CommandPosts {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandPosts)
	}
}

func TestParseCommand_KnownCommands(t *testing.T) {
	tests := []struct {
		arg  string
		want Command
	}{
		{"posts", CommandPosts},
		{"post", CommandPost},
		{"search", CommandSearch},
		{"popular", CommandPopular},
		{"movie", CommandMovie},
		{"reviews", CommandReviews},
		{"my-reviews", CommandMyReviews},
		{"featured", CommandFeatured},
		{"post-create", CommandPostCreate},
		{"post-edit", CommandPostEdit},
		{"post-delete", CommandPostDelete},
		{"review-add", CommandReviewAdd},
		{"review-edit", CommandReviewEdit},
		{"review-delete", CommandReviewDelete},
		{"devstub", CommandDevstub},
		{"healthcheck", CommandHealthcheck},
	}

	for _, tt := range tests {
		if got := ParseCommand([]string{tt.arg}); got != tt.want {
			t.Errorf("ParseCommand([%s]) = %q, want %q", tt.arg, got, tt.want)
		}
	}
}

func TestParseCommand_UnknownDefaultsToPosts(t *testing.T) {
	cmd := ParseCommand([]string{"unknown"})
	if cmd != CommandPosts {
		t.Errorf("ParseCommand([unknown]) = %q, want %q", cmd, CommandPosts)
	}
}

func TestParseCommand_IgnoresExtraArgs(t *testing.T) {
	cmd := ParseCommand([]string{"reviews", "27205"})
	if cmd != CommandReviews {
		t.Errorf("ParseCommand([reviews 27205]) = %q, want %q", cmd, CommandReviews)
	}
}

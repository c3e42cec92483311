package feed

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func mustItem(t *testing.T, id string) Item {
	t.Helper()
	it, err := NewItem(Raw{ID: id, VideoURL: "https://cdn.example/" + id + ".mp4", Title: "Reel " + id})
	if err != nil {
		t.Fatalf("NewItem(%s): %v", id, err)
	}
	return it
}

func TestNewItemDefaults(t *testing.T) {
	it, err := NewItem(Raw{
		ID:         " 42 ",
		VideoURL:   "https://cdn.example/42.mp4",
		Title:      "  Sunrise  ",
		CTAURL:     "https://example.com/more",
		Categories: []string{"travel", " ", "nature"},
	})
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	if it.ID != "42" || it.Title != "Sunrise" {
		t.Fatalf("id/title not trimmed: %q %q", it.ID, it.Title)
	}
	if it.CTA.Label != "Click Here" || it.CTA.Target != "_self" {
		t.Fatalf("cta defaults = %+v", it.CTA)
	}
	if !it.HasCTA() {
		t.Fatal("HasCTA should be true with url and default label")
	}
	if len(it.Categories) != 2 {
		t.Fatalf("categories = %v, blank entries should be dropped", it.Categories)
	}
}

func TestNewItemTruncatesLabel(t *testing.T) {
	label := strings.Repeat("é", 40)
	it, err := NewItem(Raw{ID: "1", VideoURL: "u", CTALabel: label})
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Repeat("é", 30) + "..."
	if it.CTA.Label != want {
		t.Fatalf("label = %q, want %q", it.CTA.Label, want)
	}
}

func TestNewItemRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
		want error
	}{
		{"no id", Raw{VideoURL: "u"}, ErrMissingID},
		{"blank id", Raw{ID: "  ", VideoURL: "u"}, ErrMissingID},
		{"no video", Raw{ID: "1"}, ErrMissingVideoURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewItem(tt.raw); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWindowAppendDeduplicates(t *testing.T) {
	w := NewWindow([]Item{mustItem(t, "A"), mustItem(t, "B"), mustItem(t, "C"), mustItem(t, "D")})

	// Overlaps the last two items of the window.
	added := w.Append([]Item{mustItem(t, "C"), mustItem(t, "D"), mustItem(t, "E"), mustItem(t, "F")})
	if len(added) != 2 {
		t.Fatalf("added %d items, want 2", len(added))
	}
	got := strings.Join(w.IDs(), ",")
	if got != "A,B,C,D,E,F" {
		t.Fatalf("ids = %s", got)
	}
	if w.IndexOf("E") != 4 || w.IndexOf("zz") != -1 {
		t.Fatalf("IndexOf mismatch")
	}
}

func TestWindowNilSafe(t *testing.T) {
	var w *Window
	if w.Len() != 0 || w.IndexOf("x") != -1 || w.Items() != nil {
		t.Fatal("nil window should behave as empty")
	}
	if _, ok := w.At(0); ok {
		t.Fatal("At on nil window should fail")
	}
}

func TestStaticSourcePaging(t *testing.T) {
	src := NewStaticSource([]Item{mustItem(t, "1"), mustItem(t, "2"), mustItem(t, "3")})

	page, err := src.Fetch(context.Background(), Query{PageSize: 2, Offset: 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || !page.HasMore {
		t.Fatalf("first page = %d items, hasMore=%v", len(page.Items), page.HasMore)
	}

	page, err = src.Fetch(context.Background(), Query{PageSize: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.HasMore {
		t.Fatalf("last page = %d items, hasMore=%v", len(page.Items), page.HasMore)
	}

	if n := len(src.Calls()); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestFetchErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	var err error = &FetchError{Offset: 12, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("FetchError should unwrap to its cause")
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Offset != 12 {
		t.Fatal("errors.As should find FetchError")
	}
}

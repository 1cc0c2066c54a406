package window

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostclick/internal/platform"
)

func TestMatchTitle_WildcardRules(t *testing.T) {
	cases := []struct {
		pattern string
		title   string
		want    bool
	}{
		// prefix
		{"Chrome*", "Chrome - Google", true},
		{"Chrome*", "chrome - google", true},
		{"Chrome*", "Not Chrome", false},
		// suffix
		{"*Notepad", "Untitled - Notepad", true},
		{"*Notepad", "Notepad - Untitled", false},
		// substring
		{"*YouTube*", "YouTube - Chrome", true},
		{"*YouTube*", "Music - YouTube - Chrome", true},
		{"*YouTube*", "Vimeo - Chrome", false},
		// exact or substring, either direction
		{"Untitled - Notepad", "Untitled - Notepad", true},
		{"Notepad", "Untitled - Notepad", true},
		{"Untitled - Notepad (draft)", "Untitled - Notepad", true},
		{"Calculator", "Terminal", false},
		// case-insensitive exact
		{"untitled - notepad", "Untitled - NOTEPAD", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchTitle(tc.pattern, tc.title),
			"pattern %q title %q", tc.pattern, tc.title)
	}
}

func testWindows() []platform.Window {
	return []platform.Window{
		{Handle: 1, Title: "Untitled - Notepad", Process: "notepad.exe", Bounds: image.Rect(0, 0, 800, 600)},
		{Handle: 2, Title: "Chrome - Google", Process: "chrome.exe", Bounds: image.Rect(100, 100, 900, 700)},
		{Handle: 3, Title: "Chrome - YouTube", Process: "chrome.exe", Bounds: image.Rect(-640, -480, 0, 0)},
		{Handle: 4, Title: "Chrome - Minimized", Process: "chrome.exe", Minimized: true},
	}
}

func TestResolve_TitlePattern(t *testing.T) {
	fake := platform.NewFake()
	fake.SetWindows(testWindows()...)
	r := NewResolver(fake)

	wins, err := r.Resolve(Selector{Title: "Chrome*"})
	require.NoError(t, err)
	require.Len(t, wins, 2)
	assert.Equal(t, uintptr(2), wins[0].Handle)
	assert.Equal(t, uintptr(3), wins[1].Handle)
}

func TestResolve_ExcludesMinimized(t *testing.T) {
	fake := platform.NewFake()
	fake.SetWindows(testWindows()...)
	r := NewResolver(fake)

	wins, err := r.Resolve(Selector{Title: "*Minimized"})
	require.NoError(t, err)
	assert.Empty(t, wins)
}

func TestResolve_ProcessSelector(t *testing.T) {
	fake := platform.NewFake()
	fake.SetWindows(testWindows()...)
	r := NewResolver(fake)

	wins, err := r.Resolve(Selector{Process: "chrome.exe"})
	require.NoError(t, err)
	assert.Len(t, wins, 2)

	wins, err = r.Resolve(Selector{Process: "Chrome.EXE", TitleFilter: "youtube"})
	require.NoError(t, err)
	require.Len(t, wins, 1)
	assert.Equal(t, uintptr(3), wins[0].Handle)
}

func TestResolve_ProcessIndex(t *testing.T) {
	fake := platform.NewFake()
	fake.SetWindows(testWindows()...)
	r := NewResolver(fake)

	idx := 1
	wins, err := r.Resolve(Selector{Process: "chrome.exe", Index: &idx})
	require.NoError(t, err)
	require.Len(t, wins, 1)
	assert.Equal(t, uintptr(3), wins[0].Handle)

	outOfRange := 5
	wins, err = r.Resolve(Selector{Process: "chrome.exe", Index: &outOfRange})
	require.NoError(t, err)
	assert.Empty(t, wins)
}

func TestResolve_NoMatchIsEmptyNotError(t *testing.T) {
	fake := platform.NewFake()
	fake.SetWindows(testWindows()...)
	r := NewResolver(fake)

	wins, err := r.Resolve(Selector{Title: "Nothing Like This*"})
	require.NoError(t, err)
	assert.Empty(t, wins)
}

func TestSelectorValidate(t *testing.T) {
	assert.Error(t, Selector{}.Validate())
	neg := -1
	assert.Error(t, Selector{Process: "a.exe", Index: &neg}.Validate())
	assert.NoError(t, Selector{Title: "*x*"}.Validate())
	assert.NoError(t, Selector{Process: "a.exe"}.Validate())
}

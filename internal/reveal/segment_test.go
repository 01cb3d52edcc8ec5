package reveal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegment(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		group int
		want  []string
	}{
		{"empty", "", 1, nil},
		{"only whitespace", " \r\n\n\t", 1, nil},
		{"blocks and sentences", "Hi there. How are you?\n\nFine.", 1, []string{"Hi there.", "How are you?", "Fine."}},
		{"lowercase does not split", "e.g. this stays. Together", 1, []string{"e.g. this stays.", "Together"}},
		{"digits quotes and parens", "One. 2 two! \"Three\"? (four). “five” ‘six’", 1,
			[]string{"One.", "2 two!", "\"Three\"?", "(four).", "“five” ‘six’"}},
		{"no space no split", "End.Next", 1, []string{"End.Next"}},
		{"crlf and excess newlines", "A.\r\n\r\n\r\n\r\nB.", 1, []string{"A.", "B."}},
		{"blank line with spaces", "First\n   \nSecond", 1, []string{"First", "Second"}},
		{"single newline keeps block", "Line one\nline two", 1, []string{"Line one\nline two"}},
		{"newline between sentences", "Done.\nNext one.", 1, []string{"Done.", "Next one."}},
		{"grouped", "A. B. C.", 2, []string{"A. B.", "C."}},
		{"group zero defaults to one", "A. B.", 0, []string{"A.", "B."}},
		{"whitespace run collapsed", "Stop.   Go.", 1, []string{"Stop.", "Go."}},
		{"trailing terminator", "Ends here. ", 1, []string{"Ends here."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Segment(tt.text, tt.group))
		})
	}
}

func TestStateObserveAndAdvance(t *testing.T) {
	var s State
	assert.True(t, s.Observe([]string{"a", "b"}))
	assert.True(t, s.Advance())
	assert.Equal(t, 1, s.Visible)

	assert.False(t, s.Observe([]string{"a", "b"}), "same chunks keep progress")
	assert.Equal(t, 1, s.Visible)

	assert.True(t, s.Observe([]string{"a", "b2"}), "content change resets")
	assert.Equal(t, 0, s.Visible)

	s.Advance()
	s.Advance()
	assert.False(t, s.Advance())
	assert.Equal(t, 2, s.Visible)
	assert.True(t, s.Done())
	assert.Equal(t, []string{"a", "b2"}, s.Shown())
}

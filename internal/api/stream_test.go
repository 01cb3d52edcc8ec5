package api

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deltaRecorder struct {
	deltas []string
	fulls  []string
}

func (r *deltaRecorder) record(delta, full string) {
	r.deltas = append(r.deltas, delta)
	r.fulls = append(r.fulls, full)
}

func TestDemuxLines(t *testing.T) {
	body := "data: Hello\n\ndata:  World\n\ndata: [DONE]\n\n"
	rec := &deltaRecorder{}

	text, err := Demux(strings.NewReader(body), FramingLines, rec.record)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", text)
	assert.Equal(t, []string{"Hello", " World"}, rec.deltas)
	assert.Equal(t, []string{"Hello", "Hello World"}, rec.fulls)
}

func TestDemuxLinesPartialReads(t *testing.T) {
	body := "data: Hel\r\ndata: lo\r\n: keepalive\r\nevent: message\r\ndata: [DONE]\r\ndata: ignored\n"
	rec := &deltaRecorder{}

	text, err := Demux(iotest.OneByteReader(strings.NewReader(body)), FramingLines, rec.record)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, rec.deltas)
}

func TestDemuxLinesWithoutDone(t *testing.T) {
	rec := &deltaRecorder{}
	text, err := Demux(strings.NewReader("data: a\ndata: b"), FramingLines, rec.record)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
	assert.Equal(t, []string{"a", "b"}, rec.deltas)
}

func TestDemuxLinesStripsOnlyOneSpace(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"data:x\n", "x"},
		{"data: x\n", "x"},
		{"data:  x\n", " x"},
		{"data:\n", ""},
		{"  data: x\n", ""},
	}
	for _, tt := range tests {
		text, err := Demux(strings.NewReader(tt.line), FramingLines, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, text, "line %q", tt.line)
	}
}

func TestDemuxLinesDoneIsNeverContent(t *testing.T) {
	rec := &deltaRecorder{}
	text, err := Demux(strings.NewReader("data: [DONE]\ndata: late\n"), FramingLines, rec.record)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, rec.deltas)
}

func TestDemuxLinesReadErrorKeepsPartial(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("data: part\ndata: ial"), iotest.ErrReader(boom))

	text, err := Demux(r, FramingLines, nil)
	require.Error(t, err)

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "part", streamErr.Partial)
	assert.Equal(t, "part", text)
	assert.ErrorIs(t, err, boom)
}

func TestDemuxWholeBody(t *testing.T) {
	body := "data: not parsed\n\nplain reply"
	rec := &deltaRecorder{}

	text, err := Demux(iotest.HalfReader(strings.NewReader(body)), FramingWholeBody, rec.record)
	require.NoError(t, err)
	assert.Equal(t, body, text)
	assert.Equal(t, []string{body}, rec.deltas)
	assert.Equal(t, []string{body}, rec.fulls)
}

func TestDemuxWholeBodyEmpty(t *testing.T) {
	rec := &deltaRecorder{}
	text, err := Demux(strings.NewReader(""), FramingWholeBody, rec.record)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Len(t, rec.deltas, 1)
}

func TestParseFramingMode(t *testing.T) {
	mode, err := ParseFramingMode("")
	require.NoError(t, err)
	assert.Equal(t, FramingLines, mode)

	mode, err = ParseFramingMode(" Whole ")
	require.NoError(t, err)
	assert.Equal(t, FramingWholeBody, mode)

	_, err = ParseFramingMode("chunked")
	assert.Error(t, err)
}

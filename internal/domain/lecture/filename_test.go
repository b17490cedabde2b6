package lecture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_WellFormedWithSession(t *testing.T) {
	attrs := Parse("MIT-6.046-2017-Spring-lec-mit-0000-2017apr06-0404-L01.mp4", "Unsorted")

	assert.True(t, attrs.Matched)
	assert.Equal(t, "MIT-6.046-2017-Spring", attrs.Prefix)
	assert.Equal(t, "L01", attrs.Session)
	assert.Equal(t, "2017apr06", attrs.RecordDateStr)
	assert.Equal(t, "0404", attrs.RecordTime)
	assert.Equal(t, "mp4", attrs.Extension)
	require.NotNil(t, attrs.RecordDate)
	assert.Equal(t, time.Date(2017, time.April, 6, 0, 0, 0, 0, time.UTC), *attrs.RecordDate)

	assert.Equal(t, "MIT-6.046-2017-Spring-L01", attrs.CollectionSlug())
	assert.Equal(t, "Lecture - April 06, 2017", attrs.VideoTitle())
}

func TestParse_WithoutSession(t *testing.T) {
	attrs := Parse("uploads/MIT-18.01-lec-mit-0000-2016dec25-1130.mov", "Unsorted")

	assert.Equal(t, "MIT-18.01", attrs.Prefix)
	assert.Empty(t, attrs.Session)
	assert.Equal(t, "MIT-18.01", attrs.CollectionSlug())
	assert.Equal(t, "Lecture - December 25, 2016", attrs.VideoTitle())
	assert.Equal(t, "MIT-18.01-lec-mit-0000-2016dec25-1130.mov", attrs.Name)
}

func TestParse_UnparseableDateKeepsRawToken(t *testing.T) {
	attrs := Parse("MIT-8.01-lec-mit-0000-2017xyz99-0900.mp4", "Unsorted")

	assert.True(t, attrs.Matched)
	assert.Nil(t, attrs.RecordDate)
	assert.Equal(t, "Lecture - 2017xyz99", attrs.VideoTitle())
}

func TestParse_StructuralMismatch(t *testing.T) {
	attrs := Parse("Bad filename.mp4", "Unsorted Videos")

	assert.False(t, attrs.Matched)
	assert.Equal(t, "Unsorted Videos", attrs.Prefix)
	assert.Nil(t, attrs.RecordDate)
	assert.Equal(t, "Unsorted Videos", attrs.CollectionSlug())
	assert.Equal(t, "Bad filename", attrs.VideoTitle())
}

func TestParse_DefaultsUnsortedSentinel(t *testing.T) {
	assert.Equal(t, DefaultUnsorted, Parse("nope.mp4", "").Prefix)
}

func TestFormat_RoundTrip(t *testing.T) {
	names := []string{
		"MIT-6.046-2017-Spring-lec-mit-0000-2017apr06-0404-L01.mp4",
		"MIT-18.01-lec-mit-0000-2016dec25-1130.mov",
		"STS.001-lec-mit-0000-2018feb1-0905-Recitation-2.mp4",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			attrs := Parse(name, "Unsorted")
			assert.Equal(t, name, attrs.Format())
			assert.Equal(t, attrs, Parse(attrs.Format(), "Unsorted"))
		})
	}
}

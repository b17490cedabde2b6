// Package lecture understands lecture-capture file naming.
package lecture

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// DefaultUnsorted is the prefix used when a filename does not follow the capture convention.
const DefaultUnsorted = "Unsorted"

var (
	captureRegex = regexp.MustCompile(`^(?P<prefix>.+)-lec-mit-0000-(?P<date>\w+)-(?P<time>\d{4})(?:-(?P<session>.+))?\.(?P<ext>\w+)$`)
	dateRegex    = regexp.MustCompile(`^(\d{4})([A-Za-z]{3})(\d{1,2})$`)
)

// Attributes are the values recovered from a capture filename.
type Attributes struct {
	Prefix        string
	Session       string
	RecordDate    *time.Time
	RecordDateStr string
	RecordTime    string
	Extension     string
	Name          string
	// Matched is false when the name fell back to the unsorted prefix.
	Matched bool
}

// Parse extracts attributes from name. Structural mismatches yield the unsorted prefix
// and a nil RecordDate.
func Parse(name, unsorted string) Attributes {
	if unsorted == "" {
		unsorted = DefaultUnsorted
	}
	base := path.Base(name)
	m := captureRegex.FindStringSubmatch(base)
	if m == nil {
		return Attributes{
			Prefix:    unsorted,
			Extension: strings.TrimPrefix(path.Ext(base), "."),
			Name:      base,
		}
	}
	group := func(n string) string { return m[captureRegex.SubexpIndex(n)] }

	attrs := Attributes{
		Prefix:        group("prefix"),
		Session:       group("session"),
		RecordDateStr: group("date"),
		RecordTime:    group("time"),
		Extension:     group("ext"),
		Name:          base,
		Matched:       true,
	}
	if d, ok := parseRecordDate(attrs.RecordDateStr); ok {
		attrs.RecordDate = &d
	}
	return attrs
}

func parseRecordDate(s string) (time.Time, bool) {
	m := dateRegex.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	month := strings.ToUpper(m[2][:1]) + strings.ToLower(m[2][1:])
	t, err := time.Parse("2006-Jan-2", fmt.Sprintf("%s-%s-%s", m[1], month, m[3]))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Format rebuilds the capture filename. Format(Parse(n)) == n for well-formed names.
func (a Attributes) Format() string {
	if !a.Matched {
		return a.Name
	}
	name := fmt.Sprintf("%s-lec-mit-0000-%s-%s", a.Prefix, a.RecordDateStr, a.RecordTime)
	if a.Session != "" {
		name += "-" + a.Session
	}
	return name + "." + a.Extension
}

// CollectionSlug is the prefix, joined with the session when there is one.
func (a Attributes) CollectionSlug() string {
	if a.Session == "" {
		return a.Prefix
	}
	return a.Prefix + "-" + a.Session
}

// VideoTitle prefers the parsed date, then the raw date token, then the file name.
func (a Attributes) VideoTitle() string {
	if a.RecordDate != nil {
		return "Lecture - " + a.RecordDate.Format("January 02, 2006")
	}
	if a.RecordDateStr != "" {
		return "Lecture - " + a.RecordDateStr
	}
	if a.Extension != "" {
		return strings.TrimSuffix(a.Name, "."+a.Extension)
	}
	return a.Name
}

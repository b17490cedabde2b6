package pipeline

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

var srtTiming = regexp.MustCompile(`^(\d{1,2}:\d{2}:\d{2}),(\d{3})\s*-->\s*(\d{1,2}:\d{2}:\d{2}),(\d{3})(.*)$`)

// SRTToVTT rewrites a SubRip document as WebVTT: a header, dotted
// millisecond separators and LF line endings. Cue numbers become identifiers.
func SRTToVTT(r io.Reader, w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("WEBVTT\n\n"); err != nil {
		return err
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	first := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if m := srtTiming.FindStringSubmatch(line); m != nil {
			line = m[1] + "." + m[2] + " --> " + m[3] + "." + m[4] + m[5]
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

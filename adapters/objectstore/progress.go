package objectstore

import (
	"io"
	"sync"

	"github.com/khoahotran/lecture-video/internal/application/service"
)

const defaultProgressInterval = 8 * 1024 * 1024

// progressReader reports cumulative bytes read every interval bytes and once at completion.
type progressReader struct {
	r        io.Reader
	cb       service.ProgressFunc
	interval int64

	mu       sync.Mutex
	total    int64
	reported int64
}

func newProgressReader(r io.Reader, cb service.ProgressFunc, interval int64) *progressReader {
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	return &progressReader{r: r, cb: cb, interval: interval}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.total += int64(n)
		report := p.total-p.reported >= p.interval
		if report {
			p.reported = p.total
		}
		total := p.total
		p.mu.Unlock()
		if report && p.cb != nil {
			p.cb(total)
		}
	}
	return n, err
}

func (p *progressReader) done() {
	p.mu.Lock()
	total := p.total
	p.reported = total
	p.mu.Unlock()
	if p.cb != nil {
		p.cb(total)
	}
}

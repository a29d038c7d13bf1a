package session

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// utf8Stream decodes pty output lossily. Invalid bytes become U+FFFD; a
// sequence cut off at the end of a read is held back until the next read
// instead of being replaced.
type utf8Stream struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

func newUTF8Stream() *utf8Stream {
	return &utf8Stream{t: unicode.UTF8.NewDecoder()}
}

func (d *utf8Stream) decode(p []byte, atEOF bool) string {
	src := p
	if len(d.pending) > 0 {
		src = append(d.pending, p...)
		d.pending = nil
	}
	if need := len(src)*3 + utf8.UTFMax; cap(d.dst) < need {
		d.dst = make([]byte, need)
	}
	dst := d.dst[:cap(d.dst)]

	var out []byte
	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		if errors.Is(err, transform.ErrShortDst) && (nDst > 0 || nSrc > 0) {
			continue
		}
		break
	}
	if len(src) > 0 && !atEOF {
		d.pending = append([]byte(nil), src...)
	}
	return string(out)
}

// flush emits whatever is still held back, replaced as invalid.
func (d *utf8Stream) flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	return d.decode(nil, true)
}

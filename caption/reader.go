// Package caption reads WebVTT caption files as a lazy sequence of cues with
// their time markers normalized to seconds.
package caption

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineSize = 1024 * 1024

type Cue struct {
	Start float64
	End   float64
	Text  string
}

type Option func(*Reader)

// WithContext stops the reader once ctx is done. The reader then reports
// ErrResourceUnavailable.
func WithContext(ctx context.Context) Option {
	return func(r *Reader) {
		r.ctx = ctx
	}
}

// OnMalformed registers a hook that is called for every time marker that had
// to be normalized to zero.
func OnMalformed(fn func(line int, marker string)) Option {
	return func(r *Reader) {
		r.onMalformed = fn
	}
}

// Reader yields cues in file order. It follows the bufio.Scanner pattern:
// call Next until it returns false, then check Err.
type Reader struct {
	scanner     *bufio.Scanner
	ctx         context.Context
	onMalformed func(line int, marker string)

	line  int
	inCue bool
	cur   Cue
	text  []string
	cue   Cue
	err   error
	done  bool
}

func NewReader(r io.Reader, opts ...Option) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	rd := &Reader{
		scanner: scanner,
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Next advances to the next cue. It returns false at the end of input or on
// error.
func (r *Reader) Next() bool {
	if r.done {
		return false
	}

	for {
		if err := r.ctx.Err(); err != nil {
			return r.fail(err)
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return r.fail(err)
			}
			r.done = true
			return r.flush()
		}

		r.line++
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if r.line == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
			if strings.HasPrefix(line, "WEBVTT") {
				r.skipBlock()
				continue
			}
		}

		if strings.TrimSpace(line) == "" {
			if r.flush() {
				return true
			}
			continue
		}

		if strings.Contains(line, "-->") {
			emitted := r.flush()
			r.startCue(line)
			if emitted {
				return true
			}
			continue
		}

		if r.inCue {
			r.text = append(r.text, line)
			continue
		}

		switch firstWord(line) {
		case "NOTE", "STYLE", "REGION":
			r.skipBlock()
		}
		// anything else outside a cue is a cue identifier
	}
}

func (r *Reader) Cue() Cue {
	return r.cue
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) fail(err error) bool {
	r.done = true
	r.err = fmt.Errorf("%w: line %d: %w", ErrResourceUnavailable, r.line, err)
	return false
}

func (r *Reader) startCue(line string) {
	startMarker, rest, _ := strings.Cut(line, "-->")
	endMarker := ""
	if fields := strings.Fields(rest); len(fields) > 0 {
		endMarker = fields[0]
	}

	start := r.seconds(startMarker)
	end := r.seconds(endMarker)
	if end < start {
		end = start
	}

	r.inCue = true
	r.cur = Cue{Start: start, End: end}
	r.text = r.text[:0]
}

// flush completes the cue being collected. Cues without text are dropped.
func (r *Reader) flush() bool {
	if !r.inCue {
		return false
	}
	r.inCue = false
	if len(r.text) == 0 {
		return false
	}
	r.cue = r.cur
	r.cue.Text = strings.Join(r.text, "\n")
	r.text = r.text[:0]
	return true
}

func (r *Reader) seconds(marker string) float64 {
	s, err := ParseTimestamp(marker)
	if err != nil && r.onMalformed != nil {
		r.onMalformed(r.line, strings.TrimSpace(marker))
	}
	return s
}

func (r *Reader) skipBlock() {
	for r.scanner.Scan() {
		r.line++
		if strings.TrimSpace(r.scanner.Text()) == "" {
			return
		}
	}
}

func firstWord(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// File is a Reader over an opened caption file.
type File struct {
	*Reader
	f *os.File
}

// Open opens the caption file at path. A missing or unopenable file is
// reported as ErrResourceUnavailable.
func Open(path string, opts ...Option) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	return &File{Reader: NewReader(f, opts...), f: f}, nil
}

func (f *File) Close() error {
	return f.f.Close()
}

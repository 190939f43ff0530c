package httprange

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	const size = 1000
	cases := []struct {
		name   string
		header string
		want   Range
		ok     bool
		err    error
	}{
		{"explicit", "bytes=0-499", Range{0, 500}, true, nil},
		{"interior", "bytes=250-749", Range{250, 500}, true, nil},
		{"single byte", "bytes=42-42", Range{42, 1}, true, nil},
		{"last byte", "bytes=999-999", Range{999, 1}, true, nil},
		{"end clamped", "bytes=900-5000", Range{900, 100}, true, nil},
		{"open ended", "bytes=600-", Range{600, 400}, true, nil},
		{"suffix", "bytes=-300", Range{700, 300}, true, nil},
		{"suffix larger than file", "bytes=-5000", Range{0, 1000}, true, nil},
		{"start at size", "bytes=1000-1010", Range{}, false, ErrNotSatisfiable},
		{"open past size", "bytes=1000-", Range{}, false, ErrNotSatisfiable},
		{"zero suffix", "bytes=-0", Range{}, false, ErrNotSatisfiable},
		{"no prefix", "chunks=0-5", Range{}, false, nil},
		{"empty spec", "bytes=", Range{}, false, nil},
		{"multi range", "bytes=0-5,10-15", Range{}, false, nil},
		{"inverted", "bytes=500-100", Range{}, false, nil},
		{"garbage", "bytes=abc-def", Range{}, false, nil},
		{"negative start", "bytes=-5-10", Range{}, false, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok, err := Resolve(c.header, size)
			if !errors.Is(err, c.err) {
				t.Fatalf("err = %v, want %v", err, c.err)
			}
			if ok != c.ok {
				t.Fatalf("ok = %v, want %v", ok, c.ok)
			}
			if ok && got != c.want {
				t.Errorf("range = %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestResolveEmptyFile(t *testing.T) {
	if _, _, err := Resolve("bytes=0-10", 0); !errors.Is(err, ErrNotSatisfiable) {
		t.Errorf("range into empty file: err = %v, want ErrNotSatisfiable", err)
	}
	if _, _, err := Resolve("bytes=-10", 0); !errors.Is(err, ErrNotSatisfiable) {
		t.Errorf("suffix of empty file: err = %v, want ErrNotSatisfiable", err)
	}
}

func TestContentRange(t *testing.T) {
	r := Range{Start: 250, Length: 500}
	if got := r.ContentRange(1000); got != "bytes 250-749/1000" {
		t.Errorf("ContentRange = %q", got)
	}
	if got := Unsatisfiable(1000); got != "bytes */1000" {
		t.Errorf("Unsatisfiable = %q", got)
	}
}

package logger

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(2, 5)
	var got []bool
	for i := 0; i < 10; i++ {
		got = append(got, s.Allow())
	}
	passed := 0
	for _, ok := range got {
		if ok {
			passed++
		}
	}
	if passed != 4 || !got[0] || !got[1] || got[2] || !got[5] {
		t.Fatalf("pattern = %v", got)
	}
	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("zero ratio must let everything through")
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := map[string][2]int{
		"1/50":    {1, 50},
		" 3 / 4 ": {3, 4},
		"20":      {1, 20},
		"0":       {0, 0},
		"x/2":     {0, 0},
		"":        {0, 0},
	}
	for spec, want := range cases {
		if n, d := parseRatioSpec(spec); n != want[0] || d != want[1] {
			t.Fatalf("parseRatioSpec(%q) = %d/%d", spec, n, d)
		}
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestAsyncWriterFlushAndClose(t *testing.T) {
	var a, b bytes.Buffer
	w := newAsyncWriter([]io.Writer{&a, nil, &b}, 4)
	for i := 0; i < 10; i++ {
		if err := w.Write([]byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if a.String() != "xxxxxxxxxx" || b.String() != a.String() {
		t.Fatalf("sinks = %q / %q", a.String(), b.String())
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
	if err := w.Write([]byte("late")); !errors.Is(err, errWriterClosed) {
		t.Fatalf("write after close = %v", err)
	}
}

func TestAsyncWriterReportsSinkError(t *testing.T) {
	w := newAsyncWriter([]io.Writer{failWriter{}}, 1)
	_ = w.Write([]byte("x"))
	if err := w.Close(); err == nil {
		t.Fatal("expected sink error")
	}
}

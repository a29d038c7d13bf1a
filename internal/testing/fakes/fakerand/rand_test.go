package fakerand

import (
	"bytes"
	"testing"
)

func TestRandom_Sequential(t *testing.T) {
	r := NewSequential()
	buf := make([]byte, 4)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(buf, []byte{0, 1, 2, 3}) {
		t.Errorf("Read() = %v", buf)
	}
}

func TestRandom_PatternWraps(t *testing.T) {
	r := New([]byte{0xaa, 0xbb})
	buf := make([]byte, 5)
	r.Read(buf)
	if !bytes.Equal(buf, []byte{0xaa, 0xbb, 0xaa, 0xbb, 0xaa}) {
		t.Errorf("Read() = %x", buf)
	}
}

func TestRandom_Reset(t *testing.T) {
	r := NewSequential()
	a := make([]byte, 3)
	b := make([]byte, 3)
	r.Read(a)
	r.Reset()
	r.Read(b)
	if !bytes.Equal(a, b) {
		t.Errorf("after Reset got %v, want %v", b, a)
	}
}

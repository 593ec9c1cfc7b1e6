package vorbissource_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/kickmix/audiomixer/internal/source/vorbissource"
)

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func TestNewRejectsNonVorbisData(t *testing.T) {
	r := nopCloser{bytes.NewReader([]byte("this is not an ogg/vorbis stream"))}
	_, err := vorbissource.New(r, 44100)
	if err == nil {
		t.Fatal("expected an error decoding a non-Ogg/Vorbis stream")
	}
}

func TestNewRejectsEmptyStream(t *testing.T) {
	r := nopCloser{bytes.NewReader(nil)}
	_, err := vorbissource.New(r, 44100)
	if err == nil {
		t.Fatal("expected an error decoding an empty stream")
	}
}

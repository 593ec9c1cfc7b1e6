package aacsource_test

import (
	"testing"

	"github.com/kickmix/audiomixer/internal/mixererr"
	"github.com/kickmix/audiomixer/internal/source/aacsource"
)

func TestNewRejectsEmptyData(t *testing.T) {
	_, err := aacsource.New(nil)
	if err != mixererr.ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for empty input, got %v", err)
	}
}

func TestNewRejectsDataWithoutADecodableFrame(t *testing.T) {
	// Arbitrary non-ADTS bytes: the decoder never reports a consumed byte
	// count for them, so New must give up rather than loop forever.
	_, err := aacsource.New([]byte{0x00, 0x01, 0x02, 0x03})
	if err != mixererr.ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument for undecodable input, got %v", err)
	}
}

func TestNewSkipsID3v1TrailerWithoutLoopingForever(t *testing.T) {
	// A bare ID3v1 tag ("TAG" + 125 bytes) is the one case the decoder
	// recognizes and consumes without producing a sample-rate/channel
	// pair, so New must still terminate instead of spinning on it.
	data := make([]byte, 128)
	copy(data, []byte("TAG"))
	_, err := aacsource.New(data)
	if err != mixererr.ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument after exhausting an ID3-only buffer, got %v", err)
	}
}

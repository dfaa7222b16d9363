package codec

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 64; n++ {
		buf := make([]byte, n*3+n%3)
		rng.Read(buf)
		encoded := Encode(buf)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode length %d: %v", len(buf), err)
		}
		if !bytes.Equal(decoded, buf) {
			t.Fatalf("round trip mismatch for length %d", len(buf))
		}
		if Encode(decoded) != encoded {
			t.Fatalf("re-encode mismatch for length %d", len(buf))
		}
	}
}

func TestEncodeIsPrintableASCII(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	for _, r := range Encode(all) {
		if r < 0x21 || r > 0x7e {
			t.Fatalf("non printable rune %q in encoding", r)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"bad length":   "QUJD=",
		"bad alphabet": "QU*D",
		"line break":   "QUJD\nRUZH",
		"bad padding":  "Q===",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(input)
			var malformed *MalformedTransportError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedTransportError, got %v", err)
			}
		})
	}
}

func TestDecodeDataURL(t *testing.T) {
	data, mime, err := DecodeDataURL("data:audio/webm;base64," + Encode([]byte("voice")))
	if err != nil {
		t.Fatalf("decode data url: %v", err)
	}
	if mime != "audio/webm" || string(data) != "voice" {
		t.Fatalf("unexpected result %q %q", mime, data)
	}

	data, mime, err = DecodeDataURL(Encode([]byte("bare")))
	if err != nil {
		t.Fatalf("decode bare: %v", err)
	}
	if mime != "" || string(data) != "bare" {
		t.Fatalf("unexpected bare result %q %q", mime, data)
	}

	if _, _, err := DecodeDataURL("data:audio/wav,plain"); err == nil {
		t.Fatalf("expected error for non-base64 data url")
	}
}

package chrome

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDecryptPasswordRoundTrip(t *testing.T) {
	plaintexts := []string{
		"",
		"a",
		"hunter2",
		"exactly16bytes!!",
		"seventeen bytes!!",
		strings.Repeat("long password ", 10),
		"ünïcødé pässwörd",
	}

	for _, want := range plaintexts {
		blob := encryptV10(t, want, testKey)
		got, err := DecryptPassword(blob, testKey)
		if err != nil {
			t.Fatalf("DecryptPassword(%q): %v", want, err)
		}
		if got != want {
			t.Errorf("round trip: expected %q, got %q", want, got)
		}
	}
}

func TestDecryptPasswordMalformedPaddingReturnsRaw(t *testing.T) {
	tests := []struct {
		name    string
		lastPad byte
	}{
		{"zero pad byte", 0x00},
		{"pad byte above block size", 0x11},
		{"printable last byte", 'x'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := append(bytes.Repeat([]byte{'p'}, 15), tt.lastPad)
			blob := encryptRawV10(t, raw, testKey)

			got, err := DecryptPassword(blob, testKey)
			if err != nil {
				t.Fatalf("malformed padding must not fail: %v", err)
			}
			if got != string(raw) {
				t.Errorf("expected raw buffer %q, got %q", raw, got)
			}
		})
	}
}

func TestDecryptPasswordLegacyPassThrough(t *testing.T) {
	got, err := DecryptPassword([]byte("plain-old-password"), testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "plain-old-password" {
		t.Errorf("expected pass-through, got %q", got)
	}
	if IsV10([]byte("plain")) {
		t.Error("IsV10 should be false for legacy blobs")
	}

	got, err = DecryptPassword([]byte("v11legacy"), testKey)
	if err != nil || got != "v11legacy" {
		t.Errorf("expected non-v10 marker to pass through, got %q, %v", got, err)
	}
}

func TestDecryptPasswordErrors(t *testing.T) {
	if _, err := DecryptPassword([]byte("v10short"), testKey); err == nil {
		t.Error("expected error for ciphertext that is not block aligned")
	}
	if _, err := DecryptPassword([]byte("v10"), testKey); err == nil {
		t.Error("expected error for empty ciphertext")
	}
	blob := encryptV10(t, "x", testKey)
	if _, err := DecryptPassword(blob, []byte("short")); err == nil {
		t.Error("expected error for invalid key size")
	}
}

func TestChromeTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := chromeTime(13348540800000000)
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
	if !chromeTime(0).IsZero() {
		t.Error("zero timestamp should map to the zero time")
	}
}

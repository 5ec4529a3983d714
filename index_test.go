// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/sar

package sar

import (
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestPreambleRoundTrip(t *testing.T) {
	t.Parallel()

	in := preamble{indexOffset: 123456, indexLength: 789}
	got, err := parsePreamble(encodePreamble(in))
	if err != nil {
		t.Fatalf("parsePreamble: %v", err)
	}
	if got != in {
		t.Fatalf("preamble=%+v, want %+v", got, in)
	}
}

func TestParsePreamble_Malformed(t *testing.T) {
	t.Parallel()

	t.Run("short buffer", func(t *testing.T) {
		t.Parallel()

		_, err := parsePreamble([]byte("SAR\n"))
		if !errors.Is(err, ErrNotSarFile) {
			t.Fatalf("expected ErrNotSarFile, got %v", err)
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		t.Parallel()

		buf := encodePreamble(preamble{indexOffset: 24, indexLength: 8})
		copy(buf[0:4], "TAR\n")
		_, err := parsePreamble(buf)
		if !errors.Is(err, ErrNotSarFile) {
			t.Fatalf("expected ErrNotSarFile, got %v", err)
		}
	})

	t.Run("unsupported version", func(t *testing.T) {
		t.Parallel()

		buf := encodePreamble(preamble{indexOffset: 24, indexLength: 8})
		binary.LittleEndian.PutUint32(buf[4:8], 99)
		_, err := parsePreamble(buf)
		if !errors.Is(err, ErrNotSarFile) {
			t.Fatalf("expected ErrNotSarFile, got %v", err)
		}
	})
}

func TestIndexRoundTrip(t *testing.T) {
	t.Parallel()

	in := []EntryInfo{
		{Path: "b.txt", Offset: 24, Size: 5, ModTime: 1700000000, Mode: 0o644, Kind: KindFile},
		{Path: "a.txt", Offset: 29, Size: 0, ModTime: 1700000001, Mode: 0o600, Kind: KindFile},
		{Path: "dir", Offset: 29, Size: 0, Mode: 0o755, Kind: KindDir},
		{Path: "link", Offset: 29, Size: 6, ModTime: 42, Kind: KindSymlink},
		{Path: "dev/null", Offset: 35, Size: 0, Kind: KindOther},
	}

	raw, err := encodeIndex(in)
	if err != nil {
		t.Fatalf("encodeIndex: %v", err)
	}

	out, err := decodeIndex(raw)
	if err != nil {
		t.Fatalf("decodeIndex: %v", err)
	}

	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestIndexRoundTrip_Empty(t *testing.T) {
	t.Parallel()

	raw, err := encodeIndex(nil)
	if err != nil {
		t.Fatalf("encodeIndex: %v", err)
	}
	if len(raw) != 8 {
		t.Fatalf("len(raw)=%d, want 8", len(raw))
	}

	out, err := decodeIndex(raw)
	if err != nil {
		t.Fatalf("decodeIndex: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("len(out)=%d, want 0", len(out))
	}
}

func TestEncodeIndex_Invalid(t *testing.T) {
	t.Parallel()

	t.Run("empty path", func(t *testing.T) {
		t.Parallel()

		_, err := encodeIndex([]EntryInfo{{Path: ""}})
		if !errors.Is(err, ErrInvalidEntryPath) {
			t.Fatalf("expected ErrInvalidEntryPath, got %v", err)
		}
	})

	t.Run("path too long", func(t *testing.T) {
		t.Parallel()

		long := make([]byte, maxNameLen+1)
		for i := range long {
			long[i] = 'a'
		}
		_, err := encodeIndex([]EntryInfo{{Path: string(long)}})
		if !errors.Is(err, ErrFileNameTooLong) {
			t.Fatalf("expected ErrFileNameTooLong, got %v", err)
		}
	})

	t.Run("offset plus size overflows", func(t *testing.T) {
		t.Parallel()

		_, err := encodeIndex([]EntryInfo{{Path: "a", Offset: math.MaxUint64, Size: 2}})
		if !errors.Is(err, ErrSizeOverflow) {
			t.Fatalf("expected ErrSizeOverflow, got %v", err)
		}
	})
}

func TestDecodeIndex_Malformed(t *testing.T) {
	t.Parallel()

	valid := func(t *testing.T) []byte {
		t.Helper()

		raw, err := encodeIndex([]EntryInfo{
			{Path: "a.txt", Offset: 24, Size: 5, Kind: KindFile},
		})
		if err != nil {
			t.Fatalf("encodeIndex: %v", err)
		}

		return raw
	}

	t.Run("short count field", func(t *testing.T) {
		t.Parallel()

		_, err := decodeIndex([]byte{1, 2, 3})
		if !errors.Is(err, ErrMalformedIndex) {
			t.Fatalf("expected ErrMalformedIndex, got %v", err)
		}
	})

	t.Run("lying count", func(t *testing.T) {
		t.Parallel()

		raw := valid(t)
		binary.LittleEndian.PutUint64(raw[0:8], 1<<40)
		_, err := decodeIndex(raw)
		if !errors.Is(err, ErrMalformedIndex) {
			t.Fatalf("expected ErrMalformedIndex, got %v", err)
		}
	})

	t.Run("truncated record", func(t *testing.T) {
		t.Parallel()

		raw := valid(t)
		_, err := decodeIndex(raw[:len(raw)-6])
		if !errors.Is(err, ErrMalformedIndex) {
			t.Fatalf("expected ErrMalformedIndex, got %v", err)
		}
	})

	t.Run("leftover bytes", func(t *testing.T) {
		t.Parallel()

		raw := append(valid(t), 0xFF, 0xFF)
		_, err := decodeIndex(raw)
		if !errors.Is(err, ErrMalformedIndex) {
			t.Fatalf("expected ErrMalformedIndex, got %v", err)
		}
	})

	t.Run("zero name length", func(t *testing.T) {
		t.Parallel()

		raw := valid(t)
		binary.LittleEndian.PutUint32(raw[8:12], 0)
		_, err := decodeIndex(raw)
		if !errors.Is(err, ErrMalformedIndex) {
			t.Fatalf("expected ErrMalformedIndex, got %v", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()

		raw := valid(t)
		raw[12] = 0xEE
		_, err := decodeIndex(raw)
		if !errors.Is(err, ErrMalformedIndex) {
			t.Fatalf("expected ErrMalformedIndex, got %v", err)
		}
	})

	t.Run("offset plus size overflows", func(t *testing.T) {
		t.Parallel()

		raw := valid(t)
		binary.LittleEndian.PutUint64(raw[8+17:8+25], math.MaxUint64)
		binary.LittleEndian.PutUint64(raw[8+25:8+33], 2)
		_, err := decodeIndex(raw)
		if !errors.Is(err, ErrMalformedIndex) {
			t.Fatalf("expected ErrMalformedIndex, got %v", err)
		}
	})
}

func TestEntryKindString(t *testing.T) {
	t.Parallel()

	cases := map[EntryKind]string{
		KindFile:     "file",
		KindDir:      "dir",
		KindSymlink:  "symlink",
		KindOther:    "other",
		EntryKind(9): "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("EntryKind(%d).String()=%q, want %q", kind, got, want)
		}
	}
}

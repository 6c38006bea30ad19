package lyme

import (
	"bytes"
	"errors"
	"testing"
)

func TestResolveBias(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []Entry
		end     int
		want    int64
	}{
		{name: "no entries", end: 500, want: 0},
		{
			name:    "directories only",
			entries: []Entry{{Kind: KindDirectory}, {Kind: KindDirectory}},
			end:     500,
			want:    0,
		},
		{
			name: "positive shift",
			entries: []Entry{
				{Kind: KindFile, Offset: 0, Size: 10},
				{Kind: KindFile, Offset: 10, Size: 20},
			},
			end:  130,
			want: 100,
		},
		{
			name: "last payload is not last entry",
			entries: []Entry{
				{Kind: KindFile, Offset: 40, Size: 60},
				{Kind: KindFile, Offset: 0, Size: 40},
				{Kind: KindDirectory},
			},
			end:  100,
			want: 0,
		},
		{
			name:    "negative shift",
			entries: []Entry{{Kind: KindFile, Offset: 1000, Size: 8}},
			end:     208,
			want:    -800,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := resolveBias(tt.entries, tt.end); got != tt.want {
				t.Fatalf("resolveBias=%d, want %d", got, tt.want)
			}
		})
	}
}

func TestPayloadRange(t *testing.T) {
	t.Parallel()

	entry := Entry{Kind: KindFile, Offset: 10, Size: 20}

	start, end, err := payloadRange(&entry, 5, 35)
	if err != nil {
		t.Fatalf("payloadRange: %v", err)
	}
	if start != 15 || end != 35 {
		t.Fatalf("range=[%d,%d), want [15,35)", start, end)
	}

	if _, _, err := payloadRange(&entry, 6, 35); !errors.Is(err, ErrEntryOutOfBounds) {
		t.Fatalf("past end err=%v, want ErrEntryOutOfBounds", err)
	}
	if _, _, err := payloadRange(&entry, -11, 35); !errors.Is(err, ErrEntryOutOfBounds) {
		t.Fatalf("before start err=%v, want ErrEntryOutOfBounds", err)
	}
}

func TestParse_RecoversInjectedBias(t *testing.T) {
	t.Parallel()

	stub := bytes.Repeat([]byte("MZ"), 64)
	data := buildManualArchive(t, manualLayout{stub: stub, bias: int64(len(stub))}, []manualEntry{
		{name: "first.txt", data: []byte("first payload")},
		{name: "second.txt", data: []byte("second payload")},
	})

	a, err := Parse(data, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if a.Bias() != int64(len(stub)) {
		t.Fatalf("Bias=%d, want %d", a.Bias(), len(stub))
	}
	if a.Entries()[0].Offset != 0 {
		t.Fatalf("stored offset=%d, want 0", a.Entries()[0].Offset)
	}
	if !bytes.Equal(a.SFX(), stub) {
		t.Fatalf("SFX length=%d, want %d", len(a.SFX()), len(stub))
	}

	got, err := a.ReadEntry("second.txt")
	if err != nil || string(got) != "second payload" {
		t.Fatalf("ReadEntry=%q, %v", got, err)
	}
}

func TestParse_StoredOffsetModeIgnoresBias(t *testing.T) {
	t.Parallel()

	stub := bytes.Repeat([]byte("MZ"), 64)
	data := buildManualArchive(t, manualLayout{stub: stub, bias: int64(len(stub))}, []manualEntry{
		{name: "a.txt", data: []byte("payload")},
	})

	a, err := Parse(data, ParseOptions{OffsetMode: OffsetModeStored})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if a.Bias() != 0 {
		t.Fatalf("Bias=%d, want 0", a.Bias())
	}

	// Offset 0 now points into the stub, which is not a zlib stream.
	if _, err := a.ReadEntry("a.txt"); !errors.Is(err, ErrDecompress) {
		t.Fatalf("ReadEntry err=%v, want ErrDecompress", err)
	}
}

package checksum

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
)

func TestSHA256_Sum(t *testing.T) {
	calc := New()

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "Empty input",
			content:  "",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "Short input",
			content:  "abc",
			expected: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.Sum(strings.NewReader(tt.content))
			if err != nil {
				t.Fatalf("Sum() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("Sum() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSHA256_SumPropagatesReadErrors(t *testing.T) {
	boom := errors.New("boom")
	if _, err := New().Sum(iotest.ErrReader(boom)); !errors.Is(err, boom) {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestSHA256_SumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yellow_tripdata_2024-01.csv")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := New().SumFile(path)
	if err != nil {
		t.Fatalf("SumFile() error = %v", err)
	}
	if got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("SumFile() = %v", got)
	}

	if _, err := New().SumFile(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		metadata  map[string]string
		wantKnown bool
		wantMatch bool
	}{
		{"no metadata", nil, false, false},
		{"digest missing", map[string]string{"source": "yellow"}, false, false},
		{"digest matches", map[string]string{MetadataKey: "abc"}, true, true},
		{"digest differs", map[string]string{MetadataKey: "def"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			known, match := Compare(tt.metadata, "abc")
			if known != tt.wantKnown || match != tt.wantMatch {
				t.Errorf("Compare() = (%v, %v), want (%v, %v)", known, match, tt.wantKnown, tt.wantMatch)
			}
		})
	}
}

func BenchmarkSum(b *testing.B) {
	calc := New()
	content := strings.Repeat("1,2024-01-01 00:57:55,2024-01-01 01:17:43,186,79,17.70\n", 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = calc.Sum(strings.NewReader(content))
	}
}

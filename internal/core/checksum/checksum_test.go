package checksum

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Ning0612/relocator/internal/adapter/local"
	"github.com/Ning0612/relocator/internal/testutil"
)

func TestCalculate_KnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		algo  Algorithm
		want  string
	}{
		{"md5 hello world", "hello world", MD5, "5eb63bbbe01eeed093cb22bb8f5acdc3"},
		{"sha256 hello world", "hello world", SHA256, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{"md5 empty", "", MD5, "d41d8cd98f00b204e9800998ecf8427e"},
		{"sha256 empty", "", SHA256, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}

	calc := NewDefaultCalculator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.Calculate(context.Background(), strings.NewReader(tt.input), tt.algo)
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Calculate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCalculate_MaxSize(t *testing.T) {
	calc := NewCalculator(Options{MaxSize: 10, BufferSize: 4})

	_, err := calc.Calculate(context.Background(), strings.NewReader("this is more than ten bytes"), SHA256)
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("expected 'exceeds maximum' error, got %v", err)
	}
}

func TestCalculate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDefaultCalculator().Calculate(ctx, strings.NewReader("some data"), SHA256)
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestIsSupported(t *testing.T) {
	tests := []struct {
		algo     Algorithm
		expected bool
	}{
		{MD5, true},
		{SHA256, true},
		{Algorithm("sha1"), false},
		{Algorithm(""), false},
	}

	for _, tt := range tests {
		if got := IsSupported(tt.algo); got != tt.expected {
			t.Errorf("IsSupported(%s) = %v, want %v", tt.algo, got, tt.expected)
		}
	}
}

func TestFilesEqual(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	a := write("a.txt", "hello-world")
	b := write("b.txt", "hello-world")
	c := write("c.txt", "hello-wOrld")
	d := write("d.txt", "hello")

	fs := local.New()
	calc := NewDefaultCalculator()
	ctx := context.Background()

	tests := []struct {
		name string
		x, y string
		want bool
	}{
		{"identical", a, b, true},
		{"same size different content", a, c, false},
		{"different size", a, d, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.FilesEqual(ctx, fs, tt.x, tt.y)
			if err != nil {
				t.Fatalf("FilesEqual() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FilesEqual() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilesEqual_Missing(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	os.WriteFile(a, []byte("a"), 0644)

	if _, err := NewDefaultCalculator().FilesEqual(context.Background(), local.New(), a, filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFilesEqual_LargeLastByteDiffers(t *testing.T) {
	dir := t.TempDir()
	const size = 2*1024*1024 + 3
	a := testutil.CreateTestFileWithSize(t, dir, "a.bin", size)

	content, err := os.ReadFile(a)
	if err != nil {
		t.Fatal(err)
	}
	b := testutil.CreateTestFile(t, dir, "b.bin", content)
	content[size-1] ^= 0xff
	c := testutil.CreateTestFile(t, dir, "c.bin", content)

	calc := NewDefaultCalculator()
	fs := local.New()
	ctx := context.Background()

	if equal, err := calc.FilesEqual(ctx, fs, a, b); err != nil || !equal {
		t.Errorf("FilesEqual(a, b) = %v, %v, want true", equal, err)
	}
	if equal, err := calc.FilesEqual(ctx, fs, a, c); err != nil || equal {
		t.Errorf("FilesEqual(a, c) = %v, %v, want false", equal, err)
	}
}

package internal

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

var (
	sessionInputs = []string{
		"01J9Z3K5ZQ4F6V7W8X9Y0A1B2C",
		"01J9Z3K60BD4M1N2P3Q4R5S6T7",
		"01J9Z3K61EFGHJKMNPQRSTVWXY",
	}

	// 28x28 float32 tensors are 3136 bytes
	tensorInputs = [][]byte{
		bytes.Repeat([]byte{0x00}, 3136),
		bytes.Repeat([]byte{0x3f, 0x80, 0x00, 0x00}, 784),
		bytes.Repeat([]byte{0xbf, 0xd5, 0x4c, 0x43}, 784),
	}
)

func TestFastHashDeterministic(t *testing.T) {
	for _, in := range sessionInputs {
		if FastHash(in) != FastHash(in) {
			t.Errorf("FastHash(%q) is not deterministic", in)
		}

		if FastHash(in) != FastHashBytes([]byte(in)) {
			t.Errorf("FastHash and FastHashBytes disagree for %q", in)
		}
	}

	if FastHashBytes(tensorInputs[0]) == FastHashBytes(tensorInputs[1]) {
		t.Error("distinct tensors hashed to the same fingerprint")
	}
}

func TestSHA256sum(t *testing.T) {
	got := SHA256sum("")
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("SHA256sum(\"\") = %s, want %s", got, want)
	}

	if len(SHA256sum(sessionInputs[0])) != 64 {
		t.Error("SHA256sum output is not 64 hex characters")
	}
}

func BenchmarkSHA256_SessionIDs(b *testing.B) {
	for b.Loop() {
		for _, in := range sessionInputs {
			_ = SHA256sum(in)
		}
	}
}

func BenchmarkFastHash_Tensors(b *testing.B) {
	for _, in := range tensorInputs {
		b.Run(fmt.Sprintf("len_%d", len(in)), func(b *testing.B) {
			b.SetBytes(int64(len(in)))
			for b.Loop() {
				_ = FastHashBytes(in)
			}
		})
	}
}

func BenchmarkFastHash_Strings(b *testing.B) {
	long := strings.Repeat(sessionInputs[0], 64)
	for b.Loop() {
		_ = FastHash(long)
	}
}

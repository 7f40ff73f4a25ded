package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/Jerit-Baiju/caelium/internal/apperr"
)

func mustKeyNonce(t *testing.T) ([]byte, []byte) {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	nonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	return key, nonce
}

func TestGCMRoundTrip(t *testing.T) {
	key, nonce := mustKeyNonce(t)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	ciphertext, err := EncryptGCM(plaintext, key, nonce)
	if err != nil {
		t.Fatalf("EncryptGCM: %v", err)
	}
	if len(ciphertext) != len(plaintext)+GCMOverhead {
		t.Fatalf("expected ciphertext length %d, got %d", len(plaintext)+GCMOverhead, len(ciphertext))
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext contains plaintext")
	}

	decrypted, err := DecryptGCM(ciphertext, key, nonce)
	if err != nil {
		t.Fatalf("DecryptGCM: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("round trip mismatch: got %q", decrypted)
	}
}

func TestGCMTamperDetection(t *testing.T) {
	key, nonce := mustKeyNonce(t)
	ciphertext, err := EncryptGCM([]byte("sensitive payload"), key, nonce)
	if err != nil {
		t.Fatalf("EncryptGCM: %v", err)
	}

	t.Run("flipped body byte", func(t *testing.T) {
		tampered := append([]byte(nil), ciphertext...)
		tampered[0] ^= 0x01
		if _, err := DecryptGCM(tampered, key, nonce); !errors.Is(err, apperr.ErrIntegrity) {
			t.Fatalf("expected ErrIntegrity, got %v", err)
		}
	})

	t.Run("flipped tag byte", func(t *testing.T) {
		tampered := append([]byte(nil), ciphertext...)
		tampered[len(tampered)-1] ^= 0x01
		if _, err := DecryptGCM(tampered, key, nonce); !errors.Is(err, apperr.ErrIntegrity) {
			t.Fatalf("expected ErrIntegrity, got %v", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other, _ := GenerateKey()
		if _, err := DecryptGCM(ciphertext, other, nonce); !errors.Is(err, apperr.ErrIntegrity) {
			t.Fatalf("expected ErrIntegrity, got %v", err)
		}
	})
}

func TestGCMEmptyPlaintext(t *testing.T) {
	key, nonce := mustKeyNonce(t)
	ciphertext, err := EncryptGCM(nil, key, nonce)
	if err != nil {
		t.Fatalf("EncryptGCM: %v", err)
	}
	if len(ciphertext) != GCMOverhead {
		t.Fatalf("expected tag-only ciphertext, got %d bytes", len(ciphertext))
	}
	decrypted, err := DecryptGCM(ciphertext, key, nonce)
	if err != nil {
		t.Fatalf("DecryptGCM: %v", err)
	}
	if len(decrypted) != 0 {
		t.Fatalf("expected empty plaintext, got %d bytes", len(decrypted))
	}
}

func TestParamValidation(t *testing.T) {
	if _, err := EncryptGCM(nil, []byte("short"), make([]byte, NonceSize)); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for short key, got %v", err)
	}
	if _, err := EncryptGCM(nil, make([]byte, KeySize), []byte("bad")); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for short nonce, got %v", err)
	}
}

func TestCTRStreamRoundTrip(t *testing.T) {
	key, nonce := mustKeyNonce(t)

	// Spans three chunks with a ragged tail.
	plaintext := make([]byte, 2*ChunkSize+12345)
	if _, err := rand.Read(plaintext); err != nil {
		t.Fatalf("rand: %v", err)
	}

	var ciphertext bytes.Buffer
	n, err := EncryptCTR(&ciphertext, bytes.NewReader(plaintext), key, nonce)
	if err != nil {
		t.Fatalf("EncryptCTR: %v", err)
	}
	if n != int64(len(plaintext)) {
		t.Fatalf("expected %d bytes written, got %d", len(plaintext), n)
	}

	var decrypted bytes.Buffer
	if _, err := DecryptCTR(&decrypted, bytes.NewReader(ciphertext.Bytes()), key, nonce); err != nil {
		t.Fatalf("DecryptCTR: %v", err)
	}
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Fatal("CTR round trip mismatch")
	}
}

func TestCTRChunkRandomAccess(t *testing.T) {
	key, nonce := mustKeyNonce(t)

	plaintext := make([]byte, ChunkSize+4096)
	if _, err := rand.Read(plaintext); err != nil {
		t.Fatalf("rand: %v", err)
	}

	var ciphertext bytes.Buffer
	if _, err := EncryptCTR(&ciphertext, bytes.NewReader(plaintext), key, nonce); err != nil {
		t.Fatalf("EncryptCTR: %v", err)
	}

	// Decrypt only the second chunk without touching the first.
	second, err := TransformCTRChunk(ciphertext.Bytes()[ChunkSize:], key, nonce, 1)
	if err != nil {
		t.Fatalf("TransformCTRChunk: %v", err)
	}
	if !bytes.Equal(second, plaintext[ChunkSize:]) {
		t.Fatal("random access chunk mismatch")
	}
}

func TestCTRKeystreamContinuesAcrossChunks(t *testing.T) {
	key, nonce := mustKeyNonce(t)

	// Zero plaintext makes the ciphertext equal the raw keystream, so block
	// comparisons read keystream directly.
	zeros := make([]byte, 2*ChunkSize)
	var stream bytes.Buffer
	if _, err := EncryptCTR(&stream, bytes.NewReader(zeros), key, nonce); err != nil {
		t.Fatalf("EncryptCTR: %v", err)
	}
	ks := stream.Bytes()

	t.Run("no block repeats at the chunk boundary", func(t *testing.T) {
		const block = 16
		if bytes.Equal(ks[ChunkSize:ChunkSize+block], ks[block:2*block]) {
			t.Fatal("chunk 1 opens with chunk 0's second keystream block")
		}
		if bytes.Equal(ks[ChunkSize:ChunkSize+block], ks[:block]) {
			t.Fatal("chunk 1 opens with chunk 0's first keystream block")
		}
	})

	t.Run("chunk keystreams share no tail overlap", func(t *testing.T) {
		// If counters overlapped, a long run of chunk 0's keystream would
		// reappear inside chunk 1.
		if bytes.Contains(ks[ChunkSize:], ks[64:128]) {
			t.Fatal("chunk 0 keystream run found inside chunk 1")
		}
	})

	t.Run("single continuous counter stream", func(t *testing.T) {
		// One CTR instance run over the whole buffer must produce the same
		// bytes as the chunked path: chunk boundaries only partition the
		// counter stream, they never restart it.
		blk, err := aes.NewCipher(key)
		if err != nil {
			t.Fatalf("NewCipher: %v", err)
		}
		whole := make([]byte, len(zeros))
		cipher.NewCTR(blk, chunkIV(nonce, 0)).XORKeyStream(whole, zeros)
		if !bytes.Equal(whole, ks) {
			t.Fatal("chunked keystream diverges from the continuous counter stream")
		}
	})
}

func TestCTRChunkIndexBound(t *testing.T) {
	key, nonce := mustKeyNonce(t)
	if _, err := TransformCTRChunk([]byte("x"), key, nonce, MaxChunks); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument past the chunk limit, got %v", err)
	}
	if _, err := TransformCTRChunk([]byte("x"), key, nonce, MaxChunks-1); err != nil {
		t.Fatalf("last allowed chunk index should transform, got %v", err)
	}
}

func TestCTRChunkIVsDiffer(t *testing.T) {
	key, nonce := mustKeyNonce(t)
	same := bytes.Repeat([]byte{0xAA}, 64)

	first, err := TransformCTRChunk(same, key, nonce, 0)
	if err != nil {
		t.Fatalf("TransformCTRChunk: %v", err)
	}
	second, err := TransformCTRChunk(same, key, nonce, 1)
	if err != nil {
		t.Fatalf("TransformCTRChunk: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatal("different chunk indexes produced identical keystream")
	}
}

func TestCTRReader(t *testing.T) {
	key, nonce := mustKeyNonce(t)
	plaintext := make([]byte, ChunkSize+777)
	if _, err := rand.Read(plaintext); err != nil {
		t.Fatalf("rand: %v", err)
	}

	var ciphertext bytes.Buffer
	if _, err := EncryptCTR(&ciphertext, bytes.NewReader(plaintext), key, nonce); err != nil {
		t.Fatalf("EncryptCTR: %v", err)
	}

	reader, err := NewCTRReader(bytes.NewReader(ciphertext.Bytes()), key, nonce)
	if err != nil {
		t.Fatalf("NewCTRReader: %v", err)
	}
	decrypted, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatal("CTRReader round trip mismatch")
	}
}

// Package crypto implements the two cipher modes used for files at rest.
//
// Whole-buffer AES-256-GCM is used for small and medium files: the full
// plaintext is sealed in one call and any tampering anywhere in the
// ciphertext fails decryption before a single byte is returned.
//
// Large files use chunked AES-256-CTR: every chunk starts at its own block
// offset in one continuous counter stream, so any chunk can be decrypted
// without its predecessors and no counter value is ever used twice under one
// key/nonce pair. CTR provides no integrity check; a tampered chunk decrypts
// to garbage silently, so callers must not rely on tamper detection on the
// CTR path.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Jerit-Baiju/caelium/internal/apperr"
)

const (
	KeySize   = 32
	NonceSize = 12

	// ChunkSize is the CTR-mode plaintext chunk size.
	ChunkSize = 10 * 1024 * 1024

	// GCMOverhead is the appended auth tag length.
	GCMOverhead = 16

	// WholeBufferLimit is the largest plaintext encrypted in whole-buffer GCM
	// mode; anything larger streams through chunked CTR.
	WholeBufferLimit = 100 * 1024 * 1024

	// blocksPerChunk is the number of AES blocks of keystream one full chunk
	// consumes. Chunk counters start blocksPerChunk apart so adjacent chunks
	// never overlap in the counter stream.
	blocksPerChunk = ChunkSize / aes.BlockSize

	// MaxChunks is the number of chunks whose block counters fit the 4-byte
	// counter space without wrapping into the nonce. It caps a CTR file at
	// MaxChunks*ChunkSize bytes (a little under 64 GiB).
	MaxChunks = (1 << 32) / blocksPerChunk
)

func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

func validateParams(key, nonce []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: key must be %d bytes", apperr.ErrInvalidArgument, KeySize)
	}
	if len(nonce) != NonceSize {
		return fmt.Errorf("%w: nonce must be %d bytes", apperr.ErrInvalidArgument, NonceSize)
	}
	return nil
}

// EncryptGCM seals plaintext with AES-256-GCM. The returned ciphertext
// carries the auth tag appended, so it is GCMOverhead bytes longer than the
// plaintext.
func EncryptGCM(plaintext, key, nonce []byte) ([]byte, error) {
	if err := validateParams(key, nonce); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nil
}

// DecryptGCM verifies and opens GCM ciphertext atomically. A failed tag check
// returns apperr.ErrIntegrity and no plaintext.
func DecryptGCM(ciphertext, key, nonce []byte) ([]byte, error) {
	if err := validateParams(key, nonce); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperr.ErrIntegrity
	}
	return plaintext, nil
}

func validateChunkIndex(index uint32) error {
	if index >= MaxChunks {
		return fmt.Errorf("%w: chunk index %d exceeds the %d chunk CTR limit", apperr.ErrInvalidArgument, index, MaxChunks)
	}
	return nil
}

// chunkIV builds the 16-byte CTR IV for one chunk: the nonce followed by the
// big-endian counter of the chunk's first AES block. NewCTR increments that
// counter once per block, so chunk index+1 begins exactly where chunk index's
// keystream ends. The caller must have validated index < MaxChunks.
func chunkIV(nonce []byte, index uint32) []byte {
	iv := make([]byte, aes.BlockSize)
	copy(iv, nonce)
	binary.BigEndian.PutUint32(iv[NonceSize:], index*blocksPerChunk)
	return iv
}

// TransformCTRChunk encrypts or decrypts a single chunk in place-free
// fashion; CTR is symmetric so the same call serves both directions. The
// chunk index selects the keystream, so chunk N never needs chunks 0..N-1.
func TransformCTRChunk(data, key, nonce []byte, index uint32) ([]byte, error) {
	if err := validateParams(key, nonce); err != nil {
		return nil, err
	}
	if err := validateChunkIndex(index); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	cipher.NewCTR(block, chunkIV(nonce, index)).XORKeyStream(out, data)
	return out, nil
}

// EncryptCTR streams plaintext from r to w chunk by chunk, returning the
// number of ciphertext bytes written (equal to the plaintext size; CTR adds
// no overhead).
func EncryptCTR(w io.Writer, r io.Reader, key, nonce []byte) (int64, error) {
	return transformCTRStream(w, r, key, nonce)
}

// DecryptCTR streams ciphertext from r to w chunk by chunk.
func DecryptCTR(w io.Writer, r io.Reader, key, nonce []byte) (int64, error) {
	return transformCTRStream(w, r, key, nonce)
}

func transformCTRStream(w io.Writer, r io.Reader, key, nonce []byte) (int64, error) {
	if err := validateParams(key, nonce); err != nil {
		return 0, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, err
	}

	var total int64
	buf := make([]byte, ChunkSize)
	for index := uint32(0); ; index++ {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			if err := validateChunkIndex(index); err != nil {
				return total, err
			}
			out := make([]byte, n)
			cipher.NewCTR(block, chunkIV(nonce, index)).XORKeyStream(out, buf[:n])
			if _, err := w.Write(out); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

// CTRReader decrypts a CTR ciphertext stream lazily, one chunk per refill, so
// large files never sit in memory whole.
type CTRReader struct {
	src   io.Reader
	block cipher.Block
	nonce []byte
	index uint32
	buf   []byte
	out   []byte
	err   error
}

func NewCTRReader(src io.Reader, key, nonce []byte) (*CTRReader, error) {
	if err := validateParams(key, nonce); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &CTRReader{
		src:   src,
		block: block,
		nonce: append([]byte(nil), nonce...),
		buf:   make([]byte, ChunkSize),
	}, nil
}

func (r *CTRReader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		n, readErr := io.ReadFull(r.src, r.buf)
		if n > 0 {
			if err := validateChunkIndex(r.index); err != nil {
				r.err = err
				return 0, r.err
			}
			out := make([]byte, n)
			cipher.NewCTR(r.block, chunkIV(r.nonce, r.index)).XORKeyStream(out, r.buf[:n])
			r.index++
			r.out = out
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			r.err = io.EOF
		} else if readErr != nil {
			r.err = readErr
		}
		if n == 0 {
			return 0, r.err
		}
	}

	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func initiateSession(t *testing.T, env *testEnv, token string, filename string, totalSize int64, totalChunks int, encrypt bool) string {
	t.Helper()
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/cloud/upload/initiate", map[string]any{
		"filename":     filename,
		"file_size":    totalSize,
		"total_chunks": totalChunks,
		"encrypt":      encrypt,
	}, authHeaders(token))
	assertStatus(t, resp, fiber.StatusCreated)
	data := dataField(t, decodeJSONMap(t, resp))
	return data["upload_id"].(string)
}

func sendChunk(t *testing.T, env *testEnv, token, sessionID string, index int, data []byte) *http.Response {
	t.Helper()
	return performMultipartUpload(t, env.app, "/api/cloud/upload/"+sessionID+"/chunk", "chunk",
		map[string][]byte{"blob": data},
		map[string]string{"chunk_number": strconv.Itoa(index)},
		authHeaders(token))
}

func TestChunkedUploadFlow(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "chunks@example.com", "password123")

	part0 := []byte("the first slice of a large video file ")
	part1 := []byte("the middle slice with more bytes in it ")
	part2 := []byte("and the final slice")
	full := append(append(append([]byte{}, part0...), part1...), part2...)

	sessionID := initiateSession(t, env, token, "VID_20240102_093000.mp4", int64(len(full)), 3, true)

	// Out of order arrival.
	resp := sendChunk(t, env, token, sessionID, 2, part2)
	assertStatus(t, resp, fiber.StatusOK)
	resp = sendChunk(t, env, token, sessionID, 0, part0)
	assertStatus(t, resp, fiber.StatusOK)

	t.Run("finalize with missing chunks reports progress", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/cloud/upload/"+sessionID+"/finalize", nil, authHeaders(token))
		assertStatus(t, resp, fiber.StatusBadRequest)
		body := decodeJSONMap(t, resp)
		if got := body["chunks_received"].(float64); got != 2 {
			t.Fatalf("expected 2 chunks received, got %v", got)
		}
		if got := body["total_chunks"].(float64); got != 3 {
			t.Fatalf("expected 3 total chunks, got %v", got)
		}
	})

	t.Run("retried chunk does not double count", func(t *testing.T) {
		resp := sendChunk(t, env, token, sessionID, 0, part0)
		assertStatus(t, resp, fiber.StatusOK)
		data := dataField(t, decodeJSONMap(t, resp))
		if got := data["chunks_received"].(float64); got != 2 {
			t.Fatalf("expected 2 chunks received after retry, got %v", got)
		}
	})

	t.Run("out of range index rejected", func(t *testing.T) {
		resp := sendChunk(t, env, token, sessionID, 3, []byte("overflow"))
		assertStatus(t, resp, fiber.StatusBadRequest)
	})

	resp = sendChunk(t, env, token, sessionID, 1, part1)
	assertStatus(t, resp, fiber.StatusOK)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/cloud/upload/"+sessionID+"/finalize", nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusCreated)
	entry := dataField(t, decodeJSONMap(t, resp))
	if entry["name"] != "VID_20240102_093000.mp4" {
		t.Fatalf("expected the session filename, got %v", entry["name"])
	}
	if entry["category"] != "Videos" {
		t.Fatalf("expected Videos category, got %v", entry["category"])
	}

	body, dlResp := downloadBody(t, env, token, entry["id"].(string))
	assertStatus(t, dlResp, fiber.StatusOK)
	if !bytes.Equal(body, full) {
		t.Fatal("assembled download does not match the original bytes")
	}

	t.Run("session is gone after finalize", func(t *testing.T) {
		resp := sendChunk(t, env, token, sessionID, 0, part0)
		assertStatus(t, resp, fiber.StatusNotFound)
	})
}

func TestInitiateValidation(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "initiate@example.com", "password123")

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"zero chunks", map[string]any{"filename": "a.bin", "file_size": 10, "total_chunks": 0}},
		{"zero size", map[string]any{"filename": "a.bin", "file_size": 0, "total_chunks": 1}},
		{"missing filename", map[string]any{"file_size": 10, "total_chunks": 1}},
		{"oversized", map[string]any{"filename": "a.bin", "file_size": int64(65 * 1024 * 1024), "total_chunks": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := performJSONRequest(t, env.app, http.MethodPost, "/api/cloud/upload/initiate", tt.payload, authHeaders(token))
			assertStatus(t, resp, fiber.StatusBadRequest)
		})
	}
}

func TestChunkForeignSession(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createTestUser(t, env.db, "sessowner@example.com", "password123")
	_, otherToken := createTestUser(t, env.db, "sessother@example.com", "password123")

	sessionID := initiateSession(t, env, ownerToken, "secret.bin", 4, 1, false)

	resp := sendChunk(t, env, otherToken, sessionID, 0, []byte("data"))
	assertStatus(t, resp, fiber.StatusNotFound)

	t.Run("unknown session", func(t *testing.T) {
		resp := sendChunk(t, env, ownerToken, uuid.NewString(), 0, []byte("data"))
		assertStatus(t, resp, fiber.StatusNotFound)
	})
}

func TestBatchUpload(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "batch@example.com", "password123")

	resp := performMultipartUpload(t, env.app, "/api/cloud/upload/batch", "files", map[string][]byte{
		"one.txt":   []byte("first"),
		"two.txt":   []byte("second"),
		"three.txt": []byte("third"),
	}, nil, authHeaders(token))
	assertStatus(t, resp, fiber.StatusOK)
	body := decodeJSONMap(t, resp)
	results, ok := body["data"].([]any)
	if !ok || len(results) != 3 {
		t.Fatalf("expected 3 results, got %v", body["data"])
	}
	for _, result := range results {
		r := result.(map[string]any)
		if success, _ := r["success"].(bool); !success {
			t.Fatalf("batch item failed: %v", r)
		}
	}

	listResp := performRequest(t, env.app, http.MethodGet, "/api/cloud/explorer", nil, authHeaders(token))
	data := dataField(t, decodeJSONMap(t, listResp))
	if files := data["files"].([]any); len(files) != 3 {
		t.Fatalf("expected 3 files in the root listing, got %d", len(files))
	}
}

package session

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

// sessionRecord is the JSON shape of a ProcessingSession in the KV store.
type sessionRecord struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	SizeBytes   int64  `json:"size_bytes"`
	PageCount   int    `json:"page_count"`
	ChunkCount  int    `json:"chunk_count"`
	Status      string `json:"status"`
	Transitions int    `json:"transitions"`
	CreatedAt   int64  `json:"created_at"`  // unix millis
	ExpiresAt   int64  `json:"expires_at"`  // unix millis
}

// buildChunkFields converts a DocumentChunk into a flat map[string]string for HSET.
func buildChunkFields(c domain.DocumentChunk) map[string]string {
	return map[string]string{
		"index":   strconv.Itoa(c.Index),
		"content": c.Content,
		"pages":   joinInts(c.Pages),
		"vector":  vectorToBytes(c.Embedding),
	}
}

// parseChunkFields converts a flat hash map back into a DocumentChunk.
func parseChunkFields(m map[string]string) domain.DocumentChunk {
	idx, _ := strconv.Atoi(m["index"])
	return domain.DocumentChunk{
		Index:     idx,
		Content:   m["content"],
		Pages:     splitInts(m["pages"]),
		Embedding: bytesToVector(m["vector"]),
	}
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			nums = append(nums, n)
		}
	}
	return nums
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	if len(s) < 4 {
		return nil
	}
	vec := make([]float32, len(s)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(s[i*4 : i*4+4])))
	}
	return vec
}

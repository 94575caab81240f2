package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

const (
	fingerprintSeparator = "\x00"
	mergeDomain          = "merge"
	chunkDomain          = "chunk"
)

// Fingerprint identifies file content at a path. Identical content at two
// paths yields two fingerprints.
func Fingerprint(relativePath string, content []byte) string {
	hasher := sha256.New()
	hasher.Write([]byte(relativePath))
	hasher.Write([]byte(fingerprintSeparator))
	hasher.Write(content)
	return hex.EncodeToString(hasher.Sum(nil))
}

// ChunkFingerprint identifies one chunk of a file. The chunk text is hashed
// together with the file fingerprint and the chunk position.
func ChunkFingerprint(fileFingerprint string, chunkIndex int, chunkTotal int, chunkText string) string {
	return derive(chunkDomain, fileFingerprint, strconv.Itoa(chunkIndex), strconv.Itoa(chunkTotal), chunkText)
}

// MergeFingerprint identifies a merge of ordered inputs under a path. Any
// change to an input text, an input label, or their order changes the result.
func MergeFingerprint(relativePath string, labels []string, texts []string) string {
	parts := make([]string, 0, 2+2*len(texts))
	parts = append(parts, relativePath, strconv.Itoa(len(texts)))
	for inputIndex, text := range texts {
		label := ""
		if inputIndex < len(labels) {
			label = labels[inputIndex]
		}
		parts = append(parts, label, text)
	}
	return derive(mergeDomain, parts...)
}

func derive(domain string, parts ...string) string {
	hasher := sha256.New()
	hasher.Write([]byte(domain))
	for _, part := range parts {
		hasher.Write([]byte(fingerprintSeparator))
		hasher.Write([]byte(strconv.Itoa(len(part))))
		hasher.Write([]byte(fingerprintSeparator))
		hasher.Write([]byte(part))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

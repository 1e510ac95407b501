package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExportFingerprint(t *testing.T) {
	a := ExportFingerprint("tenant-a", "pat-1", "doc-1")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ExportFingerprint("tenant-a", "pat-1", "doc-1"))
	assert.NotEqual(t, a, ExportFingerprint("tenant-b", "pat-1", "doc-1"))
	// separators keep shifted boundaries apart
	assert.NotEqual(t, ExportFingerprint("ab", "c", "d"), ExportFingerprint("a", "bc", "d"))
}

func TestContentHashes(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(nil))
	assert.Equal(t, "2jmj7l5rSw0yVb/vlWAYkK/YBwk=", AttachmentHash(nil))
}

func TestIdentifierSystems(t *testing.T) {
	assert.Equal(t, "urn:test:source-document:tenant-a", SourceDocumentIdentifierSystem("urn:test", "tenant-a"))
	assert.Equal(t, "urn:test:source-patient:tenant-a", SourcePatientIdentifierSystem("urn:test:", "tenant-a"))
	assert.Equal(t, "urn:discharge-export:source-document:t", SourceDocumentIdentifierSystem("", "t"))
	assert.Equal(t, "https://example.org/ids:fingerprint", FingerprintIdentifierSystem("https://example.org/ids/"))
	assert.Equal(t, "urn:test|42", IdentifierToken("urn:test", "42"))
}

func TestNormalizeContentType(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "application/octet-stream"},
		{"garbage", ";;", "application/octet-stream"},
		{"lowercases media type", "Application/PDF", "application/pdf"},
		{"keeps charset only", "text/plain; Charset=UTF-8; format=flowed", "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeContentType(tt.in))
		})
	}
}

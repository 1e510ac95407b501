package utils

import (
	"crypto/sha1"
	"crypto/sha256"
	"discharge-export-service/internal/pkg/constvars"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// ExportFingerprint derives the stable key that recognises an already exported
// document: sha256 over tenant, destination patient and source document id.
func ExportFingerprint(tenantID, destinationPatientID, sourceDocumentID string) string {
	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(destinationPatientID))
	h.Write([]byte{0})
	h.Write([]byte(sourceDocumentID))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the hex sha256 of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// AttachmentHash is the base64 sha1 FHIR expects in Attachment.hash.
func AttachmentHash(content []byte) string {
	sum := sha1.Sum(content)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// SourceDocumentIdentifierSystem scopes source document ids per tenant so two
// tenants' EHRs cannot collide on the same id.
func SourceDocumentIdentifierSystem(baseSystem, tenantID string) string {
	return identifierSystem(baseSystem, constvars.SourceDocumentIdentifierPath, tenantID)
}

func SourcePatientIdentifierSystem(baseSystem, tenantID string) string {
	return identifierSystem(baseSystem, constvars.SourcePatientIdentifierPath, tenantID)
}

func FingerprintIdentifierSystem(baseSystem string) string {
	return fmt.Sprintf("%s:%s", strings.TrimRight(baseSystem, ":/"), constvars.FingerprintIdentifierPath)
}

func identifierSystem(baseSystem, kind, tenantID string) string {
	if baseSystem == "" {
		baseSystem = constvars.DefaultExportIdentifierSystem
	}
	return fmt.Sprintf("%s:%s:%s", strings.TrimRight(baseSystem, ":/"), kind, tenantID)
}

// IdentifierToken renders a FHIR token search value "system|value".
func IdentifierToken(system, value string) string {
	return fmt.Sprintf("%s|%s", system, value)
}

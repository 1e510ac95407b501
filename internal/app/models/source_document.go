package models

import "discharge-export-service/internal/pkg/fhir_dto"

// SourceDocument is what the source EHR client hands back: the document
// metadata and its decoded content.
type SourceDocument struct {
	Metadata    *fhir_dto.DocumentReference
	Content     []byte
	ContentType string
	Size        int64
}

type ResolvedPatient struct {
	DestinationPatientID string
	Created              bool
}

type DuplicateCheck struct {
	Duplicate                   bool
	ExistingDocumentReferenceID string
	ExistingBinaryID            string
	ExistingCompositionID       string
}

type WriteDocumentInput struct {
	TenantID             string
	DestinationPatientID string
	EncounterID          string
	SourceDocumentID     string
	Content              []byte
	ContentType          string
	Title                string
	Fingerprint          string
}

type WrittenDocument struct {
	BinaryID            string
	DocumentReferenceID string
	CompositionID       string
	// Adopted means a concurrent writer won and these are its identifiers.
	Adopted bool
	// DiscardErrors lists best-effort cleanups of the losing resources that failed.
	DiscardErrors []error
}

// SourceConnection describes how to reach and authenticate to one tenant's
// source EHR.
type SourceConnection struct {
	TenantID      string   `mapstructure:"-"`
	BaseUrl       string   `mapstructure:"base_url"`
	TokenUrl      string   `mapstructure:"token_url"`
	ClientID      string   `mapstructure:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret"`
	PrivateKey    string   `mapstructure:"private_key"`
	KeyID         string   `mapstructure:"key_id"`
	Scopes        []string `mapstructure:"scopes"`
	RatePerSecond float64  `mapstructure:"rate_per_second"`
	Burst         int      `mapstructure:"burst"`
}

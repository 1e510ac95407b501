// Package fhirdesttest provides an in-memory destination FHIR store that
// satisfies the destination client contracts, for tests of the export
// pipeline.
package fhirdesttest

import (
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"discharge-export-service/internal/pkg/fhir_dto"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Store holds resources by type and id. Every create is stamped with a
// strictly increasing meta.lastUpdated.
type Store struct {
	mu    sync.Mutex
	seq   int
	epoch time.Time

	patients           map[string]*fhir_dto.Patient
	binaries           map[string]*fhir_dto.Binary
	documentReferences map[string]*fhir_dto.DocumentReference
	compositions       map[string]*fhir_dto.Composition

	creates map[string]int
	deletes []string

	// IgnoreIfNoneExist makes conditional creates always create, like a server
	// whose If-None-Exist check is not atomic.
	IgnoreIfNoneExist bool
	// FailCreate, when set, is consulted before every create.
	FailCreate func(resourceType string) error
	// AfterCreate, when set, runs outside the lock after every successful create.
	AfterCreate func(resourceType, id string)
}

func NewStore() *Store {
	return &Store{
		epoch:              time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		patients:           map[string]*fhir_dto.Patient{},
		binaries:           map[string]*fhir_dto.Binary{},
		documentReferences: map[string]*fhir_dto.DocumentReference{},
		compositions:       map[string]*fhir_dto.Composition{},
		creates:            map[string]int{},
	}
}

var (
	_ contracts.PatientFhirClient           = (*Store)(nil)
	_ contracts.BinaryFhirClient            = (*Store)(nil)
	_ contracts.DocumentReferenceFhirClient = (*Store)(nil)
	_ contracts.CompositionFhirClient       = (*Store)(nil)
)

// Creates returns how many resources of resourceType were created.
func (s *Store) Creates(resourceType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates[resourceType]
}

// TotalCreates counts creates of every type.
func (s *Store) TotalCreates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.creates {
		total += n
	}
	return total
}

// Deletes returns "Type/id" for every delete received.
func (s *Store) Deletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

// Count returns how many live resources of resourceType the store holds.
func (s *Store) Count(resourceType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch resourceType {
	case constvars.ResourcePatient:
		return len(s.patients)
	case constvars.ResourceBinary:
		return len(s.binaries)
	case constvars.ResourceDocumentReference:
		return len(s.documentReferences)
	case constvars.ResourceComposition:
		return len(s.compositions)
	}
	return 0
}

func (s *Store) Binary(id string) *fhir_dto.Binary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.binaries[id]; ok {
		return clone(b)
	}
	return nil
}

func (s *Store) DocumentReference(id string) *fhir_dto.DocumentReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.documentReferences[id]; ok {
		return clone(d)
	}
	return nil
}

func (s *Store) Composition(id string) *fhir_dto.Composition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.compositions[id]; ok {
		return clone(c)
	}
	return nil
}

func (s *Store) Patient(id string) *fhir_dto.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.patients[id]; ok {
		return clone(p)
	}
	return nil
}

func (s *Store) CreatePatient(ctx context.Context, request *fhir_dto.Patient) (*fhir_dto.Patient, bool, error) {
	if err := s.beforeCreate(ctx, constvars.ResourcePatient); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	if !s.IgnoreIfNoneExist && len(request.Identifier) > 0 {
		for _, existing := range s.patients {
			if identifiersContain(existing.Identifier, request.Identifier[0].System, request.Identifier[0].Value) {
				s.mu.Unlock()
				return clone(existing), false, nil
			}
		}
	}
	patient := clone(request)
	patient.ID, patient.Meta = s.stamp(constvars.ResourcePatient)
	s.patients[patient.ID] = patient
	s.mu.Unlock()

	s.afterCreate(constvars.ResourcePatient, patient.ID)
	return clone(patient), true, nil
}

func (s *Store) DeletePatient(ctx context.Context, patientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patients, patientID)
	s.deletes = append(s.deletes, constvars.ResourcePatient+"/"+patientID)
	return nil
}

func (s *Store) CreateBinary(ctx context.Context, request *fhir_dto.Binary) (*fhir_dto.Binary, error) {
	if err := s.beforeCreate(ctx, constvars.ResourceBinary); err != nil {
		return nil, err
	}

	s.mu.Lock()
	binary := clone(request)
	binary.ID, binary.Meta = s.stamp(constvars.ResourceBinary)
	s.binaries[binary.ID] = binary
	s.mu.Unlock()

	s.afterCreate(constvars.ResourceBinary, binary.ID)
	return clone(binary), nil
}

func (s *Store) DeleteBinary(ctx context.Context, binaryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.binaries, binaryID)
	s.deletes = append(s.deletes, constvars.ResourceBinary+"/"+binaryID)
	return nil
}

func (s *Store) CreateDocumentReference(ctx context.Context, request *fhir_dto.DocumentReference, ifNoneExist string) (*fhir_dto.DocumentReference, bool, error) {
	if err := s.beforeCreate(ctx, constvars.ResourceDocumentReference); err != nil {
		return nil, false, err
	}
	system, value := parseCondition(ifNoneExist)

	s.mu.Lock()
	if !s.IgnoreIfNoneExist && system != "" {
		for _, existing := range s.documentReferences {
			if identifiersContain(existing.Identifier, system, value) {
				s.mu.Unlock()
				return clone(existing), false, nil
			}
		}
	}
	documentReference := clone(request)
	documentReference.ID, documentReference.Meta = s.stamp(constvars.ResourceDocumentReference)
	s.documentReferences[documentReference.ID] = documentReference
	s.mu.Unlock()

	s.afterCreate(constvars.ResourceDocumentReference, documentReference.ID)
	return clone(documentReference), true, nil
}

func (s *Store) FindDocumentReferences(ctx context.Context, patientID, identifierToken string) ([]fhir_dto.DocumentReference, error) {
	if err := ctx.Err(); err != nil {
		return nil, exceptions.ErrCancelled("search document references", err)
	}
	system, value := splitToken(identifierToken)

	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []fhir_dto.DocumentReference
	for _, documentReference := range s.documentReferences {
		if documentReference.SubjectID() == patientID && identifiersContain(documentReference.Identifier, system, value) {
			matches = append(matches, *clone(documentReference))
		}
	}
	return matches, nil
}

func (s *Store) DeleteDocumentReference(ctx context.Context, documentReferenceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documentReferences, documentReferenceID)
	s.deletes = append(s.deletes, constvars.ResourceDocumentReference+"/"+documentReferenceID)
	return nil
}

func (s *Store) CreateComposition(ctx context.Context, request *fhir_dto.Composition, ifNoneExist string) (*fhir_dto.Composition, bool, error) {
	if err := s.beforeCreate(ctx, constvars.ResourceComposition); err != nil {
		return nil, false, err
	}
	system, value := parseCondition(ifNoneExist)

	s.mu.Lock()
	if !s.IgnoreIfNoneExist && system != "" {
		for _, existing := range s.compositions {
			if existing.Identifier != nil && existing.Identifier.System == system && existing.Identifier.Value == value {
				s.mu.Unlock()
				return clone(existing), false, nil
			}
		}
	}
	composition := clone(request)
	composition.ID, composition.Meta = s.stamp(constvars.ResourceComposition)
	s.compositions[composition.ID] = composition
	s.mu.Unlock()

	s.afterCreate(constvars.ResourceComposition, composition.ID)
	return clone(composition), true, nil
}

func (s *Store) FindCompositionsByIdentifier(ctx context.Context, identifierToken string) ([]fhir_dto.Composition, error) {
	if err := ctx.Err(); err != nil {
		return nil, exceptions.ErrCancelled("search compositions", err)
	}
	system, value := splitToken(identifierToken)

	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []fhir_dto.Composition
	for _, composition := range s.compositions {
		if composition.Identifier != nil && composition.Identifier.System == system && composition.Identifier.Value == value {
			matches = append(matches, *clone(composition))
		}
	}
	return matches, nil
}

func (s *Store) DeleteComposition(ctx context.Context, compositionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.compositions, compositionID)
	s.deletes = append(s.deletes, constvars.ResourceComposition+"/"+compositionID)
	return nil
}

func (s *Store) beforeCreate(ctx context.Context, resourceType string) error {
	if err := ctx.Err(); err != nil {
		return exceptions.ErrCancelled("create "+resourceType, err)
	}
	if s.FailCreate != nil {
		if err := s.FailCreate(resourceType); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) afterCreate(resourceType, id string) {
	if s.AfterCreate != nil {
		s.AfterCreate(resourceType, id)
	}
}

// stamp must be called with mu held.
func (s *Store) stamp(resourceType string) (string, *fhir_dto.Meta) {
	s.seq++
	s.creates[resourceType]++
	lastUpdated := s.epoch.Add(time.Duration(s.seq) * time.Millisecond)
	id := fmt.Sprintf("%s-%d", strings.ToLower(resourceType), s.seq)
	return id, &fhir_dto.Meta{VersionId: "1", LastUpdated: &lastUpdated}
}

func parseCondition(ifNoneExist string) (string, string) {
	if ifNoneExist == "" {
		return "", ""
	}
	values, err := url.ParseQuery(ifNoneExist)
	if err != nil {
		return "", ""
	}
	return splitToken(values.Get(constvars.FhirSearchParamIdentifier))
}

func splitToken(token string) (string, string) {
	system, value, found := strings.Cut(token, "|")
	if !found {
		return "", token
	}
	return system, value
}

func identifiersContain(identifiers []fhir_dto.Identifier, system, value string) bool {
	for _, identifier := range identifiers {
		if identifier.System == system && identifier.Value == value {
			return true
		}
	}
	return false
}

func clone[T any](v *T) *T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}
	return out
}

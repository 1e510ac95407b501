package fhir_dto

// createdBefore orders resources by meta.lastUpdated, then by id. A resource
// without lastUpdated sorts after one that has it.
func createdBefore(aID string, aMeta *Meta, bID string, bMeta *Meta) bool {
	aHas := aMeta != nil && aMeta.LastUpdated != nil
	bHas := bMeta != nil && bMeta.LastUpdated != nil
	switch {
	case aHas && bHas:
		if !aMeta.LastUpdated.Equal(*bMeta.LastUpdated) {
			return aMeta.LastUpdated.Before(*bMeta.LastUpdated)
		}
	case aHas != bHas:
		return aHas
	}
	return aID < bID
}

// OldestDocumentReference returns the first written DocumentReference, or nil.
func OldestDocumentReference(documentReferences []DocumentReference) *DocumentReference {
	var oldest *DocumentReference
	for i := range documentReferences {
		candidate := &documentReferences[i]
		if oldest == nil || createdBefore(candidate.ID, candidate.Meta, oldest.ID, oldest.Meta) {
			oldest = candidate
		}
	}
	return oldest
}

// OldestComposition returns the first written Composition, or nil.
func OldestComposition(compositions []Composition) *Composition {
	var oldest *Composition
	for i := range compositions {
		candidate := &compositions[i]
		if oldest == nil || createdBefore(candidate.ID, candidate.Meta, oldest.ID, oldest.Meta) {
			oldest = candidate
		}
	}
	return oldest
}

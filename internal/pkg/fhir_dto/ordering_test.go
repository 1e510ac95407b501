package fhir_dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOldestDocumentReference(t *testing.T) {
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Second)

	assert.Nil(t, OldestDocumentReference(nil))

	t.Run("earliest lastUpdated wins", func(t *testing.T) {
		oldest := OldestDocumentReference([]DocumentReference{
			{ID: "a", Meta: &Meta{LastUpdated: &late}},
			{ID: "b", Meta: &Meta{LastUpdated: &early}},
		})
		assert.Equal(t, "b", oldest.ID)
	})

	t.Run("equal timestamps fall back to smallest id", func(t *testing.T) {
		oldest := OldestDocumentReference([]DocumentReference{
			{ID: "z", Meta: &Meta{LastUpdated: &early}},
			{ID: "m", Meta: &Meta{LastUpdated: &early}},
		})
		assert.Equal(t, "m", oldest.ID)
	})

	t.Run("missing meta sorts last", func(t *testing.T) {
		oldest := OldestDocumentReference([]DocumentReference{
			{ID: "a"},
			{ID: "b", Meta: &Meta{LastUpdated: &late}},
		})
		assert.Equal(t, "b", oldest.ID)
	})
}

func TestOldestComposition(t *testing.T) {
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	oldest := OldestComposition([]Composition{
		{ID: "c2", Meta: &Meta{LastUpdated: &early}},
		{ID: "c1", Meta: &Meta{LastUpdated: &early}},
	})
	assert.Equal(t, "c1", oldest.ID)
}

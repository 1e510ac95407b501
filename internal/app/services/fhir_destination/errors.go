package fhir_destination

import (
	"context"
	"discharge-export-service/internal/app/services/shared/fhirclient"
	"discharge-export-service/internal/pkg/exceptions"
	"errors"
)

func writeError(step string, err error) error {
	if errors.Is(err, context.Canceled) {
		return exceptions.ErrCancelled(step, err)
	}
	return exceptions.ErrDestinationWriteFailed(step, fhirclient.IsTransient(err), err)
}

func readError(step string, err error) error {
	if errors.Is(err, context.Canceled) {
		return exceptions.ErrCancelled(step, err)
	}
	return exceptions.ErrDestinationReadFailed(step, fhirclient.IsTransient(err), err)
}

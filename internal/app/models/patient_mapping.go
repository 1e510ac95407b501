package models

import "time"

// PatientMapping binds a tenant's source patient to exactly one destination
// Patient. Written once per key, never deleted.
type PatientMapping struct {
	TenantID             string    `json:"tenantId" bson:"tenantId"`
	SourcePatientID      string    `json:"sourcePatientId" bson:"sourcePatientId"`
	DestinationPatientID string    `json:"destinationPatientId" bson:"destinationPatientId"`
	CreatedAt            time.Time `json:"createdAt" bson:"createdAt"`
}

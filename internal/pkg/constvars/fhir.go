package constvars

const (
	ResourcePatient           = "Patient"
	ResourceBinary            = "Binary"
	ResourceDocumentReference = "DocumentReference"
	ResourceComposition       = "Composition"
	ResourceEncounter         = "Encounter"
	ResourceBundle            = "Bundle"
	ResourceOperationOutcome  = "OperationOutcome"
)

const (
	FhirDocumentReferenceStatusCurrent = "current"
	FhirCompositionStatusFinal         = "final"
	FhirDocStatusFinal                 = "final"
)

// LOINC 18842-5 "Discharge summary"
const (
	FhirLoincSystem              = "http://loinc.org"
	FhirLoincDischargeSummary    = "18842-5"
	FhirLoincDischargeSummaryTxt = "Discharge summary"
)

const (
	FhirIdentifierUseOfficial   = "official"
	FhirIdentifierUseSecondary  = "secondary"
	FhirSearchParamPatient      = "patient"
	FhirSearchParamIdentifier   = "identifier"
	FhirSearchParamEntry        = "entry"
	FhirSearchParamCount        = "_count"
	FhirNarrativeStatusGenerate = "generated"
)

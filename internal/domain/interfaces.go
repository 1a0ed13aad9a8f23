package domain

// RecordReader is read-only access to the loaded clinical records. All accessors return data
// that callers must not mutate.
type RecordReader interface {
	// Patients returns every registered patient ordered by id.
	Patients() []Patient
	Patient(id string) (Patient, bool)

	// Labs returns the patient's observations in load order.
	Labs(patientID string) []LabObservation

	// Medications returns the patient's medication records in load order.
	Medications(patientID string) []Medication

	Knowledge(medicationName string) (MedicationKnowledge, bool)
	ReferenceRange(test TestName) (ReferenceRange, bool)

	// ReferenceRanges returns the active ranges in source order.
	ReferenceRanges() []ReferenceRange
	BodyMap() BodyMap

	// Graphic returns the base anatomy graphic markup for the given variant.
	Graphic(gender GraphicGender) (string, bool)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDataConfig() *DataConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}

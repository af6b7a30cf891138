package domain

import "time"

// Citizen is a client of the appointments/payments platform. CURP and
// email are both unique keys; either one is enough to resolve the record.
type Citizen struct {
	ID             string `json:"id"`
	FirstNames     string `json:"nombres"`
	FirstLastName  string `json:"apellido_primero"`
	SecondLastName string `json:"apellido_segundo"`
	CURP           string `json:"curp"`
	Phone          string `json:"telefono"`
	Email          string `json:"email"`

	// Legacy password hashes from the appointments system. New citizens
	// created by the payments flow carry empty values.
	PasswordMD5    string `json:"-"`
	PasswordSHA256 string `json:"-"`

	RenewalDate         time.Time `json:"renovacion"`
	PendingVisitsLimit  int       `json:"limite_citas_pendientes"`
	AcceptsMessages     bool      `json:"autoriza_mensajes"`
	WantsNewsletter     bool      `json:"enviar_boletin"`
	IsSeniorCitizen     bool      `json:"es_adulto_mayor"`
	IsWoman             bool      `json:"es_mujer"`
	IsIdentityProtected bool      `json:"es_identidad"`
	HasDisability       bool      `json:"es_discapacidad"`
	IsInternalStaff     bool      `json:"es_personal_interno"`
	Audit
}

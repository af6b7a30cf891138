package domain

import "github.com/shopspring/decimal"

// District is a judicial district. Districts own authorities.
type District struct {
	ID         string `json:"id"`
	Code       string `json:"clave"`
	Name       string `json:"nombre"`
	ShortName  string `json:"nombre_corto"`
	IsDistrict bool   `json:"es_distrito"`
	IsActive   bool   `json:"es_activo"`
	Audit
}

// Authority is an issuing authority. Every authority belongs to exactly
// one district; the authority with code "ND" is the fallback used when a
// cart request names none.
type Authority struct {
	ID               string `json:"id"`
	DistrictID       string `json:"-"`
	Code             string `json:"clave"`
	Description      string `json:"descripcion"`
	ShortDescription string `json:"descripcion_corta"`
	IsJurisdictional bool   `json:"es_jurisdiccional"`
	IsActive         bool   `json:"es_activo"`
	Audit

	// Denormalized district fields, populated by the catalog store.
	DistrictCode      string `json:"distrito_clave"`
	DistrictName      string `json:"distrito_nombre"`
	DistrictShortName string `json:"distrito_nombre_corto"`
}

// FallbackAuthorityCode identifies the "NO DEFINIDO" authority.
const FallbackAuthorityCode = "ND"

// Service is a payable trámite o servicio from the catalog.
type Service struct {
	ID          string          `json:"id"`
	Code        string          `json:"clave"`
	Description string          `json:"descripcion"`
	Cost        decimal.Decimal `json:"costo"`
	URL         string          `json:"url"`
	IsActive    bool            `json:"es_activo"`
	Audit
}

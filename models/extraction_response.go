package models

type ExtractionResponse struct {
	Name           string `json:"name"`
	PassportNumber string `json:"passport_number"`
	ExpirationDate string `json:"expiration_date"` // DD/MM/YYYY
}

type ErrorResponse struct {
	Error string `json:"error"`
}

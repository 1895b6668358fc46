package models

type CustomerInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Customer is owned by the processor that created it. The same person on both
// processors is two records.
type Customer struct {
	ProcessorID        ProcessorID `json:"processor_id"`
	ExternalCustomerID string      `json:"external_customer_id"`
	Name               string      `json:"name"`
	Email              string      `json:"email"`
	Phone              string      `json:"phone,omitempty"`
}

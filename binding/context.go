package binding

import (
	"encoding/json"
	"fmt"
	"time"
)

// Address is a postal address.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"zip,omitempty"`
	Country    string `json:"country,omitempty"`
}

// BankAccount holds the payment details printed on an invoice.
type BankAccount struct {
	Name string `json:"name,omitempty"`
	IBAN string `json:"iban,omitempty"`
	BIC  string `json:"bic,omitempty"`
}

// LineItem is one position of an invoice.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit,omitempty"`
	UnitPrice   float64 `json:"unitPrice"`
	VATRate     float64 `json:"vatRate"`
	Total       float64 `json:"total"`
}

// Invoice is the invoice view exposed as "invoice.*".
type Invoice struct {
	Number    string     `json:"number"`
	Status    string     `json:"status,omitempty"`
	IssueDate time.Time  `json:"issueDate"`
	DueDate   time.Time  `json:"dueDate"`
	Currency  string     `json:"currency,omitempty"`
	Items     []LineItem `json:"items"`
	Subtotal  float64    `json:"subtotal"`
	VATTotal  float64    `json:"vatTotal"`
	Total     float64    `json:"total"`
	Notes     string     `json:"notes,omitempty"`
}

// Customer is the invoice recipient, exposed as "customer.*".
type Customer struct {
	Name           string  `json:"name"`
	RegistrationID string  `json:"registrationId,omitempty"`
	Address        Address `json:"address"`
	Email          string  `json:"email,omitempty"`
	Phone          string  `json:"phone,omitempty"`
}

// Company is the issuing company, exposed as "company.*".
type Company struct {
	Name           string      `json:"name"`
	RegistrationID string      `json:"registrationId,omitempty"`
	Address        Address     `json:"address"`
	Email          string      `json:"email,omitempty"`
	Phone          string      `json:"phone,omitempty"`
	Website        string      `json:"website,omitempty"`
	Bank           BankAccount `json:"bank"`
}

// NewContext builds a render context from typed views. Nil views are left
// out, so bindings into them resolve to nothing.
func NewContext(invoice *Invoice, customer *Customer, company *Company) (Context, error) {
	ctx := Context{}
	for key, view := range map[string]any{"invoice": invoice, "customer": customer, "company": company} {
		m, err := toMap(view)
		if err != nil {
			return nil, fmt.Errorf("binding: %s: %w", key, err)
		}
		if m != nil {
			ctx[key] = m
		}
	}
	return ctx, nil
}

// toMap round-trips a view through JSON so that the context carries the
// same names and shapes as data decoded from a request body.
func toMap(view any) (map[string]any, error) {
	switch v := view.(type) {
	case *Invoice:
		if v == nil {
			return nil, nil
		}
	case *Customer:
		if v == nil {
			return nil, nil
		}
	case *Company:
		if v == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseContext decodes a JSON object into a Context.
func ParseContext(data []byte) (Context, error) {
	var ctx Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("binding: decoding context: %w", err)
	}
	if ctx == nil {
		ctx = Context{}
	}
	return ctx, nil
}

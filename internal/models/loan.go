// internal/models/loan.go
package models

import (
	"fmt"
	"strings"
)

// LoanType is the product an applicant applies for.
type LoanType string

const (
	LoanTypePersonal  LoanType = "personal"
	LoanTypeHome      LoanType = "home"
	LoanTypeBusiness  LoanType = "business"
	LoanTypeEducation LoanType = "education"
	LoanTypeVehicle   LoanType = "vehicle"
)

// LoanTypes lists every supported loan type in display order.
var LoanTypes = []LoanType{
	LoanTypePersonal,
	LoanTypeHome,
	LoanTypeBusiness,
	LoanTypeEducation,
	LoanTypeVehicle,
}

// Valid reports whether t is one of the fixed loan types.
func (t LoanType) Valid() bool {
	_, ok := LoanProducts[t]
	return ok
}

// ParseLoanType normalizes s and checks it against the fixed enumeration.
func ParseLoanType(s string) (LoanType, error) {
	t := LoanType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown loan type %q", s)
	}
	return t, nil
}

// LoanProduct describes the commercial terms shown for a loan type.
type LoanProduct struct {
	Title         string `json:"title"`
	InterestRate  string `json:"interestRate"`
	MinRate       string `json:"minRate"`
	ProcessingFee string `json:"processingFee"`
	MaxAmount     string `json:"maxAmount"`
	Tenure        string `json:"tenure"`
	Description   string `json:"description"`
}

// LoanProducts is the product catalog keyed by loan type.
var LoanProducts = map[LoanType]LoanProduct{
	LoanTypePersonal: {
		Title:         "Personal Loan",
		InterestRate:  "10.99% - 16.99%",
		MinRate:       "10.99",
		ProcessingFee: "1-2% of loan amount",
		MaxAmount:     "₹25,00,000",
		Tenure:        "12-60 months",
		Description:   "Quick approval with minimal documentation for personal needs",
	},
	LoanTypeHome: {
		Title:         "Home Loan",
		InterestRate:  "7.50% - 9.25%",
		MinRate:       "7.50",
		ProcessingFee: "0.5-1% of loan amount",
		MaxAmount:     "₹5,00,00,000",
		Tenure:        "Up to 30 years",
		Description:   "Competitive rates for purchasing a home",
	},
	LoanTypeBusiness: {
		Title:         "Business Loan",
		InterestRate:  "12.99% - 18.00%",
		MinRate:       "12.99",
		ProcessingFee: "1.5-2.5% of loan amount",
		MaxAmount:     "₹50,00,000",
		Tenure:        "12-84 months",
		Description:   "Flexible funding for growing a business",
	},
	LoanTypeEducation: {
		Title:         "Education Loan",
		InterestRate:  "8.50% - 11.50%",
		MinRate:       "8.50",
		ProcessingFee: "Nil to 1% of loan amount",
		MaxAmount:     "₹75,00,000",
		Tenure:        "Up to 15 years",
		Description:   "Education funding with flexible repayment options",
	},
	LoanTypeVehicle: {
		Title:         "Vehicle Loan",
		InterestRate:  "9.25% - 12.50%",
		MinRate:       "9.25",
		ProcessingFee: "1-1.5% of loan amount",
		MaxAmount:     "₹80,00,000",
		Tenure:        "12-84 months",
		Description:   "Quick approvals and competitive rates for vehicle purchases",
	},
}

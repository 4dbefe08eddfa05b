// internal/wizard/documents/manual.go
package documents

import (
	"strings"

	"loan-wizard/internal/models"
)

// FieldKind is the input widget a manual-entry field renders as.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindNumber   FieldKind = "number"
	KindDate     FieldKind = "date"
	KindSelect   FieldKind = "select"
	KindTextarea FieldKind = "textarea"
)

// ManualField describes one field of a manual-entry form.
type ManualField struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Options  []string  `json:"options,omitempty"`
	Required bool      `json:"required"`
}

var manualTemplates = map[models.DocumentType][]ManualField{
	models.DocIdentity: {
		{Key: "name", Label: "Full Name", Kind: KindText, Required: true},
		{Key: "idNumber", Label: "ID Number", Kind: KindText, Required: true},
		{Key: "dateOfBirth", Label: "Date of Birth", Kind: KindDate, Required: true},
		{Key: "gender", Label: "Gender", Kind: KindSelect, Options: []string{"Male", "Female", "Other"}, Required: true},
	},
	models.DocPAN: {
		{Key: "panNumber", Label: "PAN Number", Kind: KindText, Required: true},
	},
	models.DocAddress: {
		{Key: "address", Label: "Street Address", Kind: KindText, Required: true},
		{Key: "city", Label: "City", Kind: KindText, Required: true},
		{Key: "state", Label: "State", Kind: KindText, Required: true},
		{Key: "pincode", Label: "PIN Code", Kind: KindText, Required: true},
	},
	models.DocIncome: {
		{Key: "employerName", Label: "Employer Name", Kind: KindText, Required: true},
		{Key: "employeeId", Label: "Employee ID", Kind: KindText},
		{Key: "designation", Label: "Designation", Kind: KindText},
		{Key: "monthlyIncome", Label: "Monthly Income", Kind: KindNumber, Required: true},
		{Key: "payPeriod", Label: "Pay Period", Kind: KindText},
	},
	models.DocBank: {
		{Key: "accountNumber", Label: "Account Number", Kind: KindText, Required: true},
		{Key: "ifscCode", Label: "IFSC Code", Kind: KindText, Required: true},
		{Key: "bankName", Label: "Bank Name", Kind: KindText, Required: true},
		{Key: "accountHolder", Label: "Account Holder Name", Kind: KindText, Required: true},
		{Key: "accountType", Label: "Account Type", Kind: KindSelect, Options: []string{"Savings", "Current", "Salary"}, Required: true},
	},
	models.DocCIBIL: {
		{Key: "cibilScore", Label: "CIBIL Score", Kind: KindNumber, Required: true},
		{Key: "reportDate", Label: "Report Date", Kind: KindDate, Required: true},
	},
	models.DocEmployment: {
		{Key: "companyName", Label: "Company Name", Kind: KindText, Required: true},
		{Key: "dateOfJoining", Label: "Date of Joining", Kind: KindDate, Required: true},
		{Key: "employmentType", Label: "Employment Type", Kind: KindSelect, Options: []string{"Full-time", "Part-time", "Contract"}, Required: true},
	},
	models.DocProperty: {
		{Key: "propertyType", Label: "Property Type", Kind: KindSelect, Options: []string{"Apartment", "Independent House", "Plot", "Commercial"}, Required: true},
		{Key: "propertyAddress", Label: "Property Address", Kind: KindText, Required: true},
		{Key: "propertyValue", Label: "Property Value", Kind: KindNumber, Required: true},
	},
	models.DocCollateral: {
		{Key: "collateralType", Label: "Collateral Type", Kind: KindSelect, Options: []string{"Property", "Gold", "Fixed Deposit", "Shares", "Other"}, Required: true},
		{Key: "collateralValue", Label: "Collateral Value", Kind: KindNumber, Required: true},
		{Key: "collateralDetails", Label: "Collateral Details", Kind: KindTextarea},
	},
}

// ManualTemplate returns the manual-entry form for docType.
func ManualTemplate(docType models.DocumentType) []ManualField {
	tpl := manualTemplates[docType]
	out := make([]ManualField, len(tpl))
	copy(out, tpl)
	return out
}

// MissingManualFields lists required template keys left blank in fields.
// It is informational and does not gate the documents step.
func MissingManualFields(docType models.DocumentType, fields models.FieldRecord) []string {
	var missing []string
	for _, f := range manualTemplates[docType] {
		if f.Required && strings.TrimSpace(fields[f.Key]) == "" {
			missing = append(missing, f.Key)
		}
	}
	return missing
}

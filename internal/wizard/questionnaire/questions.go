// internal/wizard/questionnaire/questions.go
package questionnaire

import (
	"fmt"

	"loan-wizard/internal/models"
)

// QuestionType distinguishes answerable questions from the framing steps.
type QuestionType string

const (
	TypeIntro QuestionType = "intro"
	TypeText  QuestionType = "text"
	TypeOutro QuestionType = "outro"
)

// Question is one step of the questionnaire. ID keys the answer in loanAnswers.
type Question struct {
	ID   string       `json:"id"`
	Text string       `json:"text"`
	Type QuestionType `json:"type"`
}

const (
	introID = "intro"
	outroID = "outro"
)

const outroText = "Thank you for sharing these details. Next we will verify your documents and assess your eligibility. " +
	"Do you have any questions before we proceed?"

func introText(loanType models.LoanType) string {
	product := "loan"
	if loanType.Valid() {
		product = string(loanType) + " loan"
	}
	return fmt.Sprintf("Welcome, and thank you for considering our %s services. "+
		"A few questions will help us understand your requirements and eligibility. Shall we begin?", product)
}

func coreQuestions(loanType models.LoanType) []Question {
	purpose := "What is the purpose of this loan?"
	if loanType.Valid() {
		purpose = fmt.Sprintf("What is the purpose of this %s loan?", loanType)
	}
	return []Question{
		{ID: "fullName", Text: "Let's start with the basics. What is your full name?", Type: TypeText},
		{ID: "dob", Text: "What is your date of birth?", Type: TypeText},
		{ID: "contact", Text: "Please share your contact number and email address.", Type: TypeText},
		{ID: "loanAmount", Text: "How much would you like to borrow?", Type: TypeText},
		{ID: "purpose", Text: purpose, Type: TypeText},
		{ID: "tenure", Text: "Over what tenure would you like to repay, for example 24 months or 10 years?", Type: TypeText},
		{ID: "employmentStatus", Text: "Are you currently employed or self-employed?", Type: TypeText},
		{ID: "employmentDetails", Text: "If employed, what is your job title and company? If self-employed, what business do you run?", Type: TypeText},
		{ID: "income", Text: "What is your approximate monthly or annual income?", Type: TypeText},
		{ID: "existingLoans", Text: "Do you have any existing loans or financial commitments?", Type: TypeText},
		{ID: "creditScore", Text: "Do you know your credit score?", Type: TypeText},
		{ID: "guarantors", Text: "Please provide details of any guarantors for this loan.", Type: TypeText},
	}
}

var extraQuestions = map[models.LoanType][]Question{
	models.LoanTypeHome: {
		{ID: "propertyValue", Text: "What is the approximate value of the property you plan to purchase?", Type: TypeText},
		{ID: "propertyAddress", Text: "What is the address of the property?", Type: TypeText},
		{ID: "downPayment", Text: "How much down payment are you planning to make?", Type: TypeText},
	},
	models.LoanTypeBusiness: {
		{ID: "businessName", Text: "What is the name of your business?", Type: TypeText},
		{ID: "businessType", Text: "What type of business entity is it (sole proprietorship, LLP, company)?", Type: TypeText},
		{ID: "yearsInBusiness", Text: "How many years has the business been operating?", Type: TypeText},
		{ID: "annualRevenue", Text: "What is the annual business revenue?", Type: TypeText},
	},
	models.LoanTypeEducation: {
		{ID: "instituteName", Text: "Which institution will you be attending?", Type: TypeText},
		{ID: "course", Text: "Which course or program will you pursue?", Type: TypeText},
		{ID: "courseDuration", Text: "What is the duration of the course?", Type: TypeText},
		{ID: "admissionStatus", Text: "Have you received an admission offer, or is your application in progress?", Type: TypeText},
	},
	models.LoanTypeVehicle: {
		{ID: "vehicleType", Text: "What type of vehicle do you plan to purchase (car, motorcycle, ...)?", Type: TypeText},
		{ID: "vehicleModel", Text: "Do you have a specific make and model in mind?", Type: TypeText},
		{ID: "dealerInfo", Text: "Are you buying from a specific dealer? If so, please share their details.", Type: TypeText},
		{ID: "vehiclePrice", Text: "What is the on-road price of the vehicle?", Type: TypeText},
	},
}

// QuestionsFor returns the ordered question list for loanType: an intro, the
// shared questions, the loan-type extras and an outro. Unknown or empty loan
// types get the generic list without extras.
func QuestionsFor(loanType models.LoanType) []Question {
	core := coreQuestions(loanType)
	extras := extraQuestions[loanType]

	out := make([]Question, 0, len(core)+len(extras)+2)
	out = append(out, Question{ID: introID, Text: introText(loanType), Type: TypeIntro})
	out = append(out, core...)
	out = append(out, extras...)
	out = append(out, Question{ID: outroID, Text: outroText, Type: TypeOutro})
	return out
}

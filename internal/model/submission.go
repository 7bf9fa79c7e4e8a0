package model

import (
	"strings"
	"time"
)

// Submission is a raw form response captured from an end customer.
// Created once by intake; only the pipeline mutates Processed and
// ProcessingError afterwards.
type Submission struct {
	ID              string            `json:"id"`
	FormID          string            `json:"form_id"`
	OwnerID         string            `json:"owner_id"`
	Responses       map[string]string `json:"responses"`
	Email           string            `json:"email,omitempty"`
	Name            string            `json:"name,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	Processed       bool              `json:"processed"`
	ProcessingError string            `json:"processing_error,omitempty"`
	SourceIP        string            `json:"source_ip,omitempty"`
	UserAgent       string            `json:"user_agent,omitempty"`
	SubmittedAt     time.Time         `json:"submitted_at"`
}

// Label variants recognized for contact field extraction.
var (
	emailLabels = []string{"Email", "email", "Email Address"}
	nameLabels  = []string{"Name", "name", "Full Name"}
	phoneLabels = []string{"Phone", "phone", "Phone Number"}
)

// ExtractContactFields fills Email, Name, and Phone from known response
// label variants. Extraction is best-effort: a missing variant leaves the
// field empty.
func (s *Submission) ExtractContactFields() {
	s.Email = firstResponse(s.Responses, emailLabels)
	s.Name = firstResponse(s.Responses, nameLabels)
	s.Phone = firstResponse(s.Responses, phoneLabels)
}

func firstResponse(responses map[string]string, labels []string) string {
	for _, l := range labels {
		if v, ok := responses[l]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

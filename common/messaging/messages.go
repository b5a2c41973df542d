package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CompanyMessage asks a worker to run a session for one company.
type CompanyMessage struct {
	CompanyID int64 `json:"company_id"`
}

// DecodeCompanyMessage parses and validates a work message.
func DecodeCompanyMessage(data []byte) (CompanyMessage, error) {
	var m CompanyMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decoding company message: %w", err)
	}
	if m.CompanyID <= 0 {
		return m, errors.New("company message without a valid company_id")
	}
	return m, nil
}

// DeadLetter is published when a session exhausted its retries.
type DeadLetter struct {
	CompanyID int64     `json:"company_id"`
	Subject   string    `json:"subject"`
	Retries   int       `json:"retries"`
	FailedAt  time.Time `json:"failed_at"`
}

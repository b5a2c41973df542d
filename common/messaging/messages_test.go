package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCompanyMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    int64
		wantErr bool
	}{
		{"valid", `{"company_id": 12}`, 12, false},
		{"extra fields", `{"company_id": 3, "source": "api"}`, 3, false},
		{"missing id", `{}`, 0, true},
		{"negative id", `{"company_id": -1}`, 0, true},
		{"string id", `{"company_id": "12"}`, 0, true},
		{"not json", `12`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeCompanyMessage([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.CompanyID)
		})
	}
}

type recordingPublisher struct {
	subject string
	data    []byte
}

func (r *recordingPublisher) PublishSync(_ context.Context, subject string, data []byte) error {
	r.subject, r.data = subject, data
	return nil
}

func TestPublishJSON(t *testing.T) {
	p := &recordingPublisher{}
	require.NoError(t, PublishJSON(context.Background(), p, "company_jobs.analyse", CompanyMessage{CompanyID: 9}))
	assert.Equal(t, "company_jobs.analyse", p.subject)
	assert.JSONEq(t, `{"company_id": 9}`, string(p.data))

	var back CompanyMessage
	require.NoError(t, json.Unmarshal(p.data, &back))
	assert.Equal(t, int64(9), back.CompanyID)
}

func TestMissingSubjects(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, MissingSubjects([]string{"a"}, []string{"a", "b", "c", "b"}))
	assert.Empty(t, MissingSubjects([]string{"a", "b"}, []string{"b"}))
	assert.Equal(t, "consumer_company_jobs-analyse", ConsumerName("company_jobs.analyse"))
}

func TestUnopenedBrokerIsDisconnected(t *testing.T) {
	var missing *NatsBroker
	assert.False(t, missing.IsConnected())
	assert.False(t, (&NatsBroker{}).IsConnected())
}

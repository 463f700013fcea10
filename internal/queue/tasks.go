package queue

const TypeUsageRecord = "usage:record"

type UsageRecordPayload struct {
	APIKeyID   string `json:"api_key_id"`
	Endpoint   string `json:"endpoint"`
	Method     string `json:"method"`
	StatusCode int    `json:"status_code"`
}

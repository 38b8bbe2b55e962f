package models

// SyncMessage событие захвата купона из очереди.
// Key содержит id пользователя, Value содержит id активности.
type SyncMessage struct {
	Queue   string `json:"queue"`
	Key     string `json:"key"`
	Value   string `json:"value"`
	TraceID string `json:"trace_id"`
}

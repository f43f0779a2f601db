package models

// Queue names. Creates and refreshes run on separate queues so a
// refresh backlog never starves new-subject setup.
const (
	QueueServices = "serviced"
	QueueRefresh  = "serviced_refresh"
)

// Job kind discriminators carried in the queue envelope.
const (
	JobKindRefresh        = "refresh"
	JobKindCreateServices = "create_services"
)

// RefreshJob asks a worker to refresh one service record. It is not
// persisted; a retry re-submits the identical message.
type RefreshJob struct {
	Kind        ServiceKind `json:"kind"`
	SubjectType string      `json:"subjectType"`
	SubjectID   string      `json:"subjectId"`
}

// CreateServicesJob asks a worker to materialize service records for
// every identifier a freshly created subject supplied.
type CreateServicesJob struct {
	SubjectType string `json:"subjectType"`
	SubjectID   string `json:"subjectId"`
}

package context

type Key string

const (
	Claims    Key = "claims"
	Params    Key = "params"
	UserID    Key = "user_id"
	RequestID Key = "request_id"
)

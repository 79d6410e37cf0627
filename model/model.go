package model

// IncomingEvent is an authorized webhook delivery with its decoded payload.
// It is built once and not modified afterwards.
type IncomingEvent struct {
	// Delivery is the unique id github gives each delivery
	Delivery string
	// Type is the value of the X-GitHub-Event header
	Type string
	// Body is the raw request body the signature was computed over
	Body []byte
	// Payload is the decoded body, one of the go-github event types
	Payload interface{}
}

// The DeploymentRequest type carries all the information needed to run a deployment
type DeploymentRequest struct {
	// FullName is the owner/name of the repository to update
	FullName string
	// URL is the repository API URL, used to find the API root
	URL string
	// Ref is the branch or tag the deployment was requested for
	Ref string
	// SHA is the commit the deployment was requested for
	SHA string
	// Actor is the github login of whoever caused the deployment
	Actor string
	// DeploymentID is set when github already tracks this deployment
	DeploymentID int64
}

// State is the result of a deployment, as reported to github
type State string

// States understood by the github deployment statuses API
const (
	StateSuccess State = "success"
	StateError   State = "error"
	StatePending State = "pending"
)

// Outcome is what the executor hands back to the router
type Outcome struct {
	State State
	// Message is a human readable diagnostic, empty on success
	Message string
	// Output is the combined output of the commands that ran
	Output string
	// Canceled is set when no configured repository matched the request
	Canceled bool
	// Head is the working copy HEAD after a successful update
	Head string
}

// Succeeded reports whether the deployment went through
func (o Outcome) Succeeded() bool {
	return o.State == StateSuccess
}

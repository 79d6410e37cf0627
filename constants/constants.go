package constants

const (
	// Version is the application version reported by `deployhook version` and `deployhook --version`
	Version = "0.2"
	// SecretEnvVar is the name of the environment variable that holds the webhook secret
	SecretEnvVar = "DEPLOY_SECRET"
	// TokenEnvVar is the name of the environment variable that holds the github personal access token
	TokenEnvVar = "PERSONAL_ACCESS_TOKEN"
	// SlackEnvVar is the name of the environment variable that holds the chat incoming webhook URL
	SlackEnvVar = "SLACK_WEBHOOK"
	// DebugEnvVar switches on debug logging
	DebugEnvVar = "DEBUG"
)

// Headers sent by github with every webhook delivery
const (
	SignatureHeader = "X-Hub-Signature"
	EventHeader     = "X-GitHub-Event"
	DeliveryHeader  = "X-GitHub-Delivery"
)

// Response bodies returned by the webhook endpoint
const (
	Greeting          = "Hello!"
	PRCreated         = "Pull Request created!"
	PRClosed          = "Pull Request closed!"
	PRMerged          = "Pull Request merged!"
	DeploymentDone    = "Deployment done!"
	DeploymentCancel  = "Deployment canceled."
	DeploymentStarted = "Deployment started"
)

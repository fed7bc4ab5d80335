package registry

// Service describes an external integration that business actions can talk
// to. API keys reference services by id.
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RegisterService adds a service, replacing any previous one with the same id.
func (r *Registry) RegisterService(id, name, description string) {
	r.services[id] = Service{ID: id, Name: name, Description: description}
}

// Service returns the service with the given id. ok is false when unknown.
func (r *Registry) Service(id string) (Service, bool) {
	service, ok := r.services[id]

	return service, ok
}

// Services returns all registered services.
func (r *Registry) Services() []Service {
	services := make([]Service, 0, len(r.services))
	for _, service := range r.services {
		services = append(services, service)
	}

	return services
}

// RegisterBuiltinServices installs the common external services.
func RegisterBuiltinServices(r *Registry) {
	r.RegisterService("openai", "OpenAI", "OpenAI API for GPT models")
	r.RegisterService("anthropic", "Anthropic", "Anthropic API for Claude models")
	r.RegisterService("slack", "Slack", "Slack API")
	r.RegisterService("github", "GitHub", "GitHub API")
	r.RegisterService("sendgrid", "SendGrid", "SendGrid email API")
	r.RegisterService("twilio", "Twilio", "Twilio SMS API")
	r.RegisterService("custom", "Custom Service", "Custom API service")
}

package compose

// Summary is what deployctl needs to know about a compose file.
type Summary struct {
	Project  string    `json:"project"`
	Services []Service `json:"services"`
	Networks []string  `json:"networks,omitempty"`
	Volumes  []string  `json:"volumes,omitempty"`
}

// Service is one service of the stack.
type Service struct {
	Name      string   `json:"name"`
	Image     string   `json:"image,omitempty"`
	Build     string   `json:"build,omitempty"` // build context, empty for image-only services
	DependsOn []string `json:"depends_on,omitempty"`
	EnvFiles  []string `json:"env_files,omitempty"`
}

// Service returns the named service.
func (s *Summary) Service(name string) (Service, bool) {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return Service{}, false
}

// ServiceNames returns the service names in order.
func (s *Summary) ServiceNames() []string {
	names := make([]string, 0, len(s.Services))
	for _, svc := range s.Services {
		names = append(names, svc.Name)
	}
	return names
}

// Built returns the services built from source on the host.
func (s *Summary) Built() []string {
	var names []string
	for _, svc := range s.Services {
		if svc.Build != "" {
			names = append(names, svc.Name)
		}
	}
	return names
}

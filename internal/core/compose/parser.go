package compose

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Parser Functions
// =============================================================================

// ParseSummary parses compose YAML into a Summary.
// Input: raw YAML, the compose project name, and the variables used for
// interpolation. Services are sorted by name.
func ParseSummary(yamlContent, projectName string, env map[string]string) (*Summary, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadProject(yamlContent, projectName, env)
	if err != nil {
		return nil, err
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	summary := &Summary{
		Project:  project.Name,
		Services: make([]Service, 0, len(project.Services)),
	}

	for _, name := range project.ServiceNames() {
		converted, err := convertService(project.Services[name])
		if err != nil {
			return nil, err
		}
		summary.Services = append(summary.Services, converted)
	}
	sort.Slice(summary.Services, func(i, j int) bool {
		return summary.Services[i].Name < summary.Services[j].Name
	})

	for name := range project.Networks {
		summary.Networks = append(summary.Networks, name)
	}
	sort.Strings(summary.Networks)

	for name := range project.Volumes {
		summary.Volumes = append(summary.Volumes, name)
	}
	sort.Strings(summary.Volumes)

	return summary, nil
}

// RequireServices checks that every named service exists.
func RequireServices(summary *Summary, names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := summary.Service(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return NewParseError("services", fmt.Sprintf("missing %s", strings.Join(missing, ", ")), ErrMissingServices)
	}
	return nil
}

// loadProject loads the YAML with compose-go, in memory.
func loadProject(yamlContent, projectName string, env map[string]string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}
	if services, ok := dict["services"].(map[string]interface{}); !ok || len(services) == 0 {
		return nil, ErrNoServices
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
		Environment: env,
	}, func(opts *loader.Options) {
		opts.SetProjectName(projectName, true)
		opts.SkipNormalization = true
		opts.SkipExtends = true
		opts.SkipInclude = true
		opts.SkipResolveEnvironment = true
		opts.SkipConsistencyCheck = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, NewParseError("", "service must have image or build", ErrServiceNoImage)
		}
		return nil, NewParseError("", errStr, ErrInvalidYAML)
	}

	return project, nil
}

// convertService converts a compose-go service to a Service.
func convertService(svc types.ServiceConfig) (Service, error) {
	service := Service{
		Name:  svc.Name,
		Image: svc.Image,
	}

	if svc.Build != nil {
		service.Build = svc.Build.Context
		if service.Build == "" {
			service.Build = "."
		}
	}

	if service.Image == "" && service.Build == "" {
		return Service{}, NewParseError("services."+svc.Name, "service must have image or build", ErrServiceNoImage)
	}

	for dep := range svc.DependsOn {
		service.DependsOn = append(service.DependsOn, dep)
	}
	sort.Strings(service.DependsOn)

	for _, f := range svc.EnvFiles {
		service.EnvFiles = append(service.EnvFiles, f.Path)
	}

	return service, nil
}

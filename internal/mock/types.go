package mock

// Config represents the mock server configuration
type Config struct {
	Port    int     `json:"port" yaml:"port"`       // Server port (default: 8080)
	Host    string  `json:"host" yaml:"host"`       // Server host (default: localhost)
	Routes  []Route `json:"routes" yaml:"routes"`   // Route definitions
	Logging bool    `json:"logging" yaml:"logging"` // Log every request at debug level
}

// Route represents a mock route configuration
type Route struct {
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`               // Route description
	Method      string            `json:"method" yaml:"method"`                               // HTTP method (GET, POST, etc.)
	Path        string            `json:"path" yaml:"path"`                                   // URL path pattern
	PathType    string            `json:"pathType,omitempty" yaml:"pathType,omitempty"`       // exact, prefix, regex (default: exact)
	Status      int               `json:"status,omitempty" yaml:"status,omitempty"`           // HTTP status code (default: 200)
	Statuses    []int             `json:"statuses,omitempty" yaml:"statuses,omitempty"`       // Status codes served in turn, overrides Status
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`         // Response headers
	Body        string            `json:"body,omitempty" yaml:"body,omitempty"`               // Response body
	BodyFile    string            `json:"bodyFile,omitempty" yaml:"bodyFile,omitempty"`       // Path to response body file
	Delay       int               `json:"delay,omitempty" yaml:"delay,omitempty"`             // Response delay in milliseconds
	Description string            `json:"description,omitempty" yaml:"description,omitempty"` // Route documentation
}

// DefaultConfig returns a catch-all GET route answering 200, or cycling
// 200 and 500 when alternate is set
func DefaultConfig(alternate bool) *Config {
	route := Route{
		Name:     "default",
		Method:   "GET",
		Path:     "/",
		PathType: "prefix",
		Body:     "OK",
	}
	if alternate {
		route.Name = "alternate"
		route.Statuses = []int{200, 500}
	} else {
		route.Status = 200
	}

	return &Config{
		Port:   8080,
		Host:   "localhost",
		Routes: []Route{route},
	}
}

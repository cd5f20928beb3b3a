package projects

import "time"

// Project is a client engagement owning features.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Client    string    `json:"client,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DisplayName prefers the project name and falls back to the client label.
func (p Project) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Client != "" {
		return p.Client
	}
	return "unnamed project"
}

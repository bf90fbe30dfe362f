package model

// LoadReport summarizes one bulk file load.
type LoadReport struct {
	Source    string         `json:"source"`
	Rows      int            `json:"rows"`
	Rejected  int            `json:"rejected"`
	Conflicts int            `json:"conflicts"`
	Actions   map[string]int `json:"actions"`
	Errors    []string       `json:"errors,omitempty"`
}

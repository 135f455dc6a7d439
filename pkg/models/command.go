package models

// CommandSpec carries the registration metadata of a command. The handler
// itself lives in the command registry; the spec is what search and the
// shell's palette render.
type CommandSpec struct {
	Path        string   `json:"path"        validate:"required"`
	Description string   `json:"description"`
	Widget      string   `json:"widget,omitempty"` // UI widget hint for rendering output
	ArgNames    []string `json:"arg_names,omitempty"`
}

package common

// Virtual key codes for cross-platform input handling.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyW = 87 // W key (ASCII), orbit camera closer
	KeyA = 65 // A key (ASCII), orbit camera left
	KeyS = 83 // S key (ASCII), orbit camera away
	KeyD = 68 // D key (ASCII), orbit camera right
	KeyR = 82 // R key (ASCII), force a full scene rebuild
	KeyN = 78 // N key (ASCII), add an instance to the demo grid
	KeyM = 77 // M key (ASCII), cycle the demo material tint
)

package scene

import "strings"

// BuildStage names one step of turning the scene graph into a draw order.
type BuildStage int

const (
	// StageGeometry re-batches the graph into a fresh instance buffer.
	StageGeometry BuildStage = iota
	// StageTransforms rewrites instance matrices in place.
	StageTransforms
	// StageMaterials drops material bind groups so they are rebuilt from current values.
	StageMaterials
	// StageRenderOrder resolves pipelines and bind groups for the current layout.
	StageRenderOrder
	// StageGlobals uploads the camera uniform.
	StageGlobals

	stageCount
)

var stageNames = [stageCount]string{
	StageGeometry:    "geometry",
	StageTransforms:  "transforms",
	StageMaterials:   "materials",
	StageRenderOrder: "render_order",
	StageGlobals:     "globals",
}

func (s BuildStage) String() string {
	if s < 0 || s >= stageCount {
		return "unknown"
	}
	return stageNames[s]
}

// implies lists stages that must follow a stage in the same pass.
var implies = map[BuildStage][]BuildStage{
	StageGeometry:  {StageRenderOrder},
	StageMaterials: {StageRenderOrder},
}

// Change notifies a scene that something it was built from has been edited.
type Change struct {
	Stages []BuildStage
	// Reason is logged with the rebuild.
	Reason string
}

// stageSet is a bitmask of pending stages.
type stageSet uint32

func (s stageSet) has(st BuildStage) bool {
	return s&(1<<st) != 0
}

func (s stageSet) with(stages ...BuildStage) stageSet {
	for _, st := range stages {
		if st < 0 || st >= stageCount {
			continue
		}
		s |= 1 << st
		s = s.with(implies[st]...)
	}
	return s
}

// ordered returns the pending stages in execution order.
func (s stageSet) ordered() []BuildStage {
	out := make([]BuildStage, 0, stageCount)
	for st := range stageCount {
		if s.has(st) {
			out = append(out, st)
		}
	}
	return out
}

func (s stageSet) String() string {
	names := make([]string, 0, stageCount)
	for _, st := range s.ordered() {
		names = append(names, st.String())
	}
	return strings.Join(names, ",")
}

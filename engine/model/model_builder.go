package model

import (
	"github.com/Carmen-Shannon/oxy-instancer/engine/mesh"
	"github.com/Carmen-Shannon/oxy-instancer/engine/renderer/material"
)

// ModelBuilderOption is a functional option for configuring a Model via NewModel.
type ModelBuilderOption func(*model)

// WithName is an option builder that sets the name of the Model.
//
// Parameters:
//   - name: the model identifier
//
// Returns:
//   - ModelBuilderOption: a function that applies the name option to a model
func WithName(name string) ModelBuilderOption {
	return func(m *model) {
		m.name = name
	}
}

// WithMeshes is an option builder that sets the meshes node templates refer to by index.
//
// Parameters:
//   - meshes: the meshes
//
// Returns:
//   - ModelBuilderOption: a function that applies the meshes option to a model
func WithMeshes(meshes ...*mesh.Mesh) ModelBuilderOption {
	return func(m *model) {
		m.meshes = meshes
	}
}

// WithMaterials is an option builder that records the materials of the Model.
//
// Parameters:
//   - materials: the materials
//
// Returns:
//   - ModelBuilderOption: a function that applies the materials option to a model
func WithMaterials(materials ...*material.Material) ModelBuilderOption {
	return func(m *model) {
		m.materials = materials
	}
}

// WithRoots is an option builder that sets the top-level node templates.
//
// Parameters:
//   - roots: the templates
//
// Returns:
//   - ModelBuilderOption: a function that applies the roots option to a model
func WithRoots(roots ...*NodeTemplate) ModelBuilderOption {
	return func(m *model) {
		m.roots = roots
	}
}

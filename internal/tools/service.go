package tools

import (
	"memoryd/internal/assembler"
	"memoryd/internal/capsule"
	"memoryd/internal/graph"
	"memoryd/internal/recorder"
	"memoryd/internal/retrieval"
	"memoryd/internal/store"
	"memoryd/internal/surgery"
)

// Deps wires the service layer into the tool registry.
type Deps struct {
	Store     *store.LocalStore
	Recorder  *recorder.Recorder
	Assembler *assembler.Assembler
	Retrieval *retrieval.Engine
	Surgery   *surgery.Service
	Capsules  *capsule.Service
	Graph     *graph.Service
}

// BuildRegistry registers the full memoryd tool set.
func BuildRegistry(d Deps) *Registry {
	r := NewRegistry()
	registerIngestTools(r, d)
	registerContextTools(r, d)
	registerMemoryTools(r, d)
	registerSurgeryTools(r, d)
	registerCapsuleTools(r, d)
	registerGraphTools(r, d)
	registerTaskTools(r, d)
	registerAdminTools(r, d)
	return r
}

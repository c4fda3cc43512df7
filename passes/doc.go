// Package passes provides function-level IR transformations and the pass
// manager that sequences them.
//
// A PassManager runs its passes over every defined function of a module,
// optionally repeating the pipeline until nothing changes:
//
//	pm := passes.NewPassManager()
//	passes.PassManagerBuilder{OptLevel: passes.OptDefault}.Populate(pm)
//	changed, err := pm.Run(module)
//
// Built-in passes are registered by name ("constfold", "dce", "simplifycfg",
// "verify") and can be looked up with Lookup.
package passes

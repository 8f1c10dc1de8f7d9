// Package project manages the lifecycle of projects in a build-aware
// language server backend.
//
// A Manager owns the pieces that keep the workspace in sync with build
// configuration:
//
//   - InitializeProjects creates the default project and hands the root
//     directory to the best matching importer.
//   - Classifier tells whether a resource is a build file of the active
//     build support.
//   - Reactor consumes file change events and, for build files, updates
//     the project, prompts the user, or does nothing depending on the
//     configured update policy.
//   - Updates run on the update.Scheduler, one queue per project.
//
// # Quick Start
//
//	ws := workspace.New(root)
//	reg := importer.NewRegistry()
//	reg.MustRegister(gomod.ID, gomod.Factory(ws))
//
//	m := project.NewManager(ws, reg, project.WithPreferences(store))
//	defer m.Close()
//	if _, err := m.InitializeProjects(ctx, root, nil); err != nil {
//	    return err
//	}
//	m.FileChanged(ctx, uri, project.Changed)
//
// The build support chosen during initialization is held by a
// buildsupport.Active owned by the Manager. It is reset at the start of
// every initialization and set once the chosen importer finished.
package project

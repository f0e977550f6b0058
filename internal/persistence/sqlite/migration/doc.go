// Package migration reconciles a single table's on-disk layout with the
// schema it is declared with.
//
// Three sources of truth are compared on every open: the declared schema, the
// version recorded in the registry table and the columns physically present.
// Depending on what it finds, the Reconciler takes one of these paths:
//
//   - unmanaged: no plan, the table is created once and never touched again
//   - bootstrap: a fresh table is created and stamped with the plan's target
//   - legacy adoption: an untracked table is converged and adopted
//   - migration: declared steps run one version at a time, or a single
//     rebuild runs when no steps are declared
//
// Versions are persisted in the _tablekeeper_registry table only after every
// phase of the step reaching them succeeded, so an interrupted migration
// resumes from the last committed version.
//
// Example usage:
//
//	reconciler := NewReconciler(db, nil)
//	if _, err := reconciler.Reconcile(ctx, "notes", declared, plan); err != nil {
//		log.Fatalf("reconcile failed: %v", err)
//	}
package migration

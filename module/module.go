/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package module is the component-extension surface spec.md §6 names:
// a small registry contract any optional piece of functionality (MUC,
// and whatever else config.Modules.Enabled turns on) implements to plug
// into the router without the core knowing its concrete type.
package module

import "github.com/ortuman/xmppd/router"

// Component is a self-contained unit of functionality that registers its
// own stanza/IQ routes against a Router at Start and unregisters them at
// Stop — grounded on the teacher's module.Module lifecycle (Initialize/
// Shutdown), generalized from a bundle of hard-wired XEP implementations
// into an explicit interface the server wires up by name.
type Component interface {
	// Name identifies the component for logging and config.Modules.Enabled
	// lookups.
	Name() string
	// Start registers the component's routes against r.
	Start(r *router.Router) error
	// Stop deregisters everything Start registered.
	Stop(r *router.Router) error
}

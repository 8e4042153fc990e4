// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package service implements the explicit start/stop lifecycle from
// spec §4.K, §9: the teacher's cmd/cc-backend/main.go sequences its
// subsystems (repository, auth, config, metricdata, the HTTP server) by
// ordered function calls baked into main itself. This package pulls
// that ordering out into a small {name, Start, Stop} capability plus a
// Registry that starts in registration order and stops in reverse,
// replacing an implicit convention with an explicit, inspectable list.
package service

import (
	"context"
	"fmt"

	"github.com/allenjin-login/usbthief/pkg/log"
)

// State is a service's position in its STOPPED/STARTING/RUNNING/
// STOPPING lifecycle (spec §4.K).
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	default:
		return "STOPPED"
	}
}

// Service is one independently startable/stoppable subsystem.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Func adapts a pair of plain functions to Service.
type Func struct {
	ServiceName string
	StartFunc   func(ctx context.Context) error
	StopFunc    func(ctx context.Context) error
}

func (f Func) Name() string                   { return f.ServiceName }
func (f Func) Start(ctx context.Context) error { return f.StartFunc(ctx) }
func (f Func) Stop(ctx context.Context) error  { return f.StopFunc(ctx) }

type entry struct {
	svc   Service
	state State
}

// Registry starts services in registration order and stops them in
// reverse, matching the teacher's implicit main.go ordering
// (repository before auth before config before metricdata) but making
// the order a visible data structure instead of call-site sequencing.
type Registry struct {
	entries []*entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends svc to the end of the start order. Call Register for
// every subsystem before calling Start.
func (r *Registry) Register(svc Service) {
	r.entries = append(r.entries, &entry{svc: svc, state: Stopped})
}

// Start starts every registered service in registration order. If one
// fails, Start stops every service that had already started (in reverse
// order) before returning the original error, so a partial startup never
// leaves subsystems dangling.
func (r *Registry) Start(ctx context.Context) error {
	for i, e := range r.entries {
		e.state = Starting
		log.Infof("service: starting %s", e.svc.Name())
		if err := e.svc.Start(ctx); err != nil {
			e.state = Stopped
			log.Errorf("service: %s failed to start: %v", e.svc.Name(), err)
			r.stopFrom(ctx, i-1)
			return fmt.Errorf("service: start %s: %w", e.svc.Name(), err)
		}
		e.state = Running
	}
	return nil
}

// Stop stops every service in reverse registration order, continuing
// past individual failures so one stuck subsystem never blocks the
// others from shutting down. It returns the first error encountered, if
// any.
func (r *Registry) Stop(ctx context.Context) error {
	return r.stopFrom(ctx, len(r.entries)-1)
}

func (r *Registry) stopFrom(ctx context.Context, from int) error {
	var first error
	for i := from; i >= 0; i-- {
		e := r.entries[i]
		if e.state != Running && e.state != Starting {
			continue
		}
		e.state = Stopping
		log.Infof("service: stopping %s", e.svc.Name())
		if err := e.svc.Stop(ctx); err != nil {
			log.Errorf("service: %s failed to stop: %v", e.svc.Name(), err)
			if first == nil {
				first = fmt.Errorf("service: stop %s: %w", e.svc.Name(), err)
			}
		}
		e.state = Stopped
	}
	return first
}

// States returns the current lifecycle state of every registered
// service, keyed by service name, for status reporting.
func (r *Registry) States() map[string]State {
	out := make(map[string]State, len(r.entries))
	for _, e := range r.entries {
		out[e.svc.Name()] = e.state
	}
	return out
}

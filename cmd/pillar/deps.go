// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

package main

import (
	"context"
	"net"

	"github.com/pillarhq/pillar/internal/config"
	"github.com/pillarhq/pillar/internal/observability"
	"github.com/pillarhq/pillar/internal/store"
)

// Deps contains injectable dependencies for the subcommands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// GatewayFactory creates the database gateway.
	// Default: store.NewPostgresGateway
	GatewayFactory func(cfg config.Database, production bool, opts ...store.GatewayOption) (*store.Gateway, error)

	// ListenerFactory creates the HTTP API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// ObservabilityServerFactory creates the metrics and probe server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) *observability.Server

	// SignalContext derives the context cancelled on shutdown signals.
	// Default: signal.NotifyContext with SIGINT and SIGTERM
	SignalContext func(ctx context.Context) (context.Context, context.CancelFunc)
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.GatewayFactory == nil {
		out.GatewayFactory = store.NewPostgresGateway
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = observability.NewServer
	}
	if out.SignalContext == nil {
		out.SignalContext = notifyContext
	}
	return &out
}

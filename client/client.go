// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package client provides the top-level entry point for this module:
// it wires an injected rpc.Client into a BulkWriter, a transaction
// runner, and single/batch document reads, the way the teacher's
// influxclient.Client wires Params into a configured HTTP transport.
// Credential resolution and wire transport are out of scope here
// (spec §1) — callers supply a concrete rpc.Client of their own.
package client

import (
	"context"

	"github.com/pkg/errors"

	"github.com/docdbio/admin-go/bulkwriter"
	"github.com/docdbio/admin-go/docreader"
	"github.com/docdbio/admin-go/resourcepath"
	"github.com/docdbio/admin-go/rpc"
	"github.com/docdbio/admin-go/txn"
)

// ErrNilRPCClient is returned by New when Params.RPC is nil.
var ErrNilRPCClient = errors.New("client: Params.RPC must not be nil")

// Params holds the parameters for creating a new Client. RPC, Project
// and Database are mandatory.
type Params struct {
	// RPC is the transport collaborator this client drives all RPCs
	// through. This module never constructs one itself.
	RPC rpc.Client

	// Project and Database scope every resource path this client
	// builds or accepts.
	Project  string
	Database string

	// BulkWriterOptions configures every BulkWriter this client
	// constructs. If nil, bulkwriter.DefaultOptions() is used.
	BulkWriterOptions *bulkwriter.Options
}

// Client is the root handle onto one project/database: it constructs
// BulkWriters, drives transaction attempts, and performs one-shot
// document reads, all against the single injected rpc.Client.
type Client struct {
	params Params
}

// New validates params and returns a ready Client.
func New(params Params) (*Client, error) {
	if params.RPC == nil {
		return nil, ErrNilRPCClient
	}
	if params.Project == "" {
		return nil, errors.New("client: Params.Project must not be empty")
	}
	if params.Database == "" {
		return nil, errors.New("client: Params.Database must not be empty")
	}
	return &Client{params: params}, nil
}

// Root returns the documents-root resource path for this client's
// project/database.
func (c *Client) Root() resourcepath.ResourcePath {
	return resourcepath.Root(c.params.Project, c.params.Database)
}

// Collection returns the resource path for a top-level collection
// named name.
func (c *Client) Collection(name string) (resourcepath.ResourcePath, error) {
	return c.Root().Append(name)
}

// NewBulkWriter constructs a BulkWriter over this client's transport,
// using Params.BulkWriterOptions if set, otherwise
// bulkwriter.DefaultOptions().
func (c *Client) NewBulkWriter() *bulkwriter.BulkWriter {
	opts := bulkwriter.DefaultOptions()
	if c.params.BulkWriterOptions != nil {
		opts = *c.params.BulkWriterOptions
	}
	return bulkwriter.New(c.params.RPC, opts)
}

// RunTransaction drives fn through the transaction retry protocol of
// spec §4.6. See txn.Run.
func (c *Client) RunTransaction(ctx context.Context, opts txn.Options, fn txn.Fn) (txn.Result, error) {
	return txn.Run(ctx, c.params.RPC, opts, fn)
}

// Get reads a single document outside any transaction.
func (c *Client) Get(ctx context.Context, path resourcepath.ResourcePath, mask ...resourcepath.FieldPath) (rpc.DocumentSnapshot, error) {
	snaps, err := c.GetAll(ctx, []resourcepath.ResourcePath{path}, mask...)
	if err != nil {
		return rpc.DocumentSnapshot{}, err
	}
	return snaps[0], nil
}

// GetAll reads paths outside any transaction, reassembled in input
// order (spec §4.7).
func (c *Client) GetAll(ctx context.Context, paths []resourcepath.ResourcePath, mask ...resourcepath.FieldPath) ([]rpc.DocumentSnapshot, error) {
	result, err := docreader.BatchGet(ctx, c.params.RPC, paths, mask, rpc.TransactionContext{})
	if err != nil {
		return nil, err
	}
	return result.Snapshots, nil
}

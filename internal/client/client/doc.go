// Package client contains the sync protocol clients for the collection and
// media endpoints.
//
// # Overview
//
// The package provides:
//  1. Transport-agnostic contracts (CollectionServer, MediaServer) listing
//     one method per protocol verb, so the syncers can be tested against
//     fakes.
//  2. HTTP implementations (HTTPCollectionServer, HTTPMediaServer) that
//     encode a typed request per verb as JSON, send it through a
//     transport.Transport and decode and validate a typed response.
//
// # Error Handling
//
// A 403 answer is common.ErrBadAuth. A response body that does not decode
// or fails validation is common.ErrRemoteDB. A media envelope with a
// non-empty "err" is a *common.MediaServerError. Transport errors
// (common.ErrNetwork, *common.UnexpectedResponseError, context errors) are
// returned unchanged.
//
// # Concurrency & Contexts
//
// A client is used by one sync at a time and is not safe for concurrent
// use. All verbs accept context.Context and honor cancellation.
package client

// Package rest wraps a handful of platform endpoints on top of the dispatch
// engine.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/namelens/guildrest/internal/core/engine"
	"github.com/namelens/guildrest/internal/core/route"
)

// Client issues typed calls through a Dispatcher.
type Client struct {
	dispatcher *engine.Dispatcher
	catalog    *route.Catalog
}

// NewClient returns a Client resolving routes from catalog. A nil catalog
// falls back to the built-in routes.
func NewClient(dispatcher *engine.Dispatcher, catalog *route.Catalog) (*Client, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if catalog == nil {
		catalog = route.DefaultCatalog()
	}
	return &Client{dispatcher: dispatcher, catalog: catalog}, nil
}

// request describes one endpoint invocation.
type request struct {
	route  string
	params route.Params
	query  url.Values
	body   any
	reason string
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	r, ok := c.catalog.Lookup(req.route)
	if !ok {
		return fmt.Errorf("%s: %w", req.route, route.ErrUnknownRoute)
	}

	call, err := engine.CallFor(r, req.params)
	if err != nil {
		return fmt.Errorf("%s: %w", req.route, err)
	}
	call.Query = req.query
	call.Reason = req.reason

	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", req.route, err)
		}
		call.Body = payload
	}

	res, err := c.dispatcher.Do(ctx, call)
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(res.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.route, err)
	}
	return nil
}

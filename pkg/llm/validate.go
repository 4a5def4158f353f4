package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// BackendStatus is the result of startup validation against the model
// backend(s).
type BackendStatus struct {
	// LoadedCount is the total number of models reported across endpoints.
	LoadedCount int
	// Missing lists configured model ids absent from their endpoint's
	// /v1/models listing.
	Missing []string
}

// ValidateBackend fetches /v1/models from every distinct endpoint the
// configured models resolve to and reports configured models the backend
// does not serve. A transport failure on any endpoint is returned as an
// *Error with KindUnreachableEndpoint so startup can fail fast.
func ValidateBackend(ctx context.Context, resolve EndpointResolver, modelIDs []string) (*BackendStatus, error) {
	type endpointGroup struct {
		ep     Endpoint
		models []string
	}
	groups := make(map[string]*endpointGroup)
	for _, id := range modelIDs {
		ep := resolve(id)
		g, ok := groups[ep.BaseURL]
		if !ok {
			g = &endpointGroup{ep: ep}
			groups[ep.BaseURL] = g
		}
		g.models = append(g.models, id)
	}

	status := &BackendStatus{}
	for _, g := range groups {
		loaded, err := listModels(ctx, g.ep)
		if err != nil {
			return nil, err
		}
		status.LoadedCount += len(loaded)
		for _, id := range g.models {
			if _, ok := loaded[id]; !ok {
				status.Missing = append(status.Missing, id)
			}
		}
	}
	sort.Strings(status.Missing)
	return status, nil
}

func listModels(ctx context.Context, ep Endpoint) (map[string]struct{}, error) {
	opts := []option.RequestOption{option.WithBaseURL(ep.BaseURL)}
	if ep.APIKey != "" {
		opts = append(opts, option.WithAPIKey(ep.APIKey))
	}
	client := openai.NewClient(opts...)

	loaded := make(map[string]struct{})
	iter := client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		loaded[iter.Current().ID] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, &Error{
			Kind:  KindUnreachableEndpoint,
			Model: "",
			Err:   fmt.Errorf("listing models at %s: %w", ep.BaseURL, err),
		}
	}
	return loaded, nil
}

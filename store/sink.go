package store

import (
	"context"
	"strings"

	"github.com/liamcoop/vouchermacro/macro"
)

// BusinessSink stores compiled artifacts for one business and links them
// under baseURL.
type BusinessSink struct {
	store    ArtifactStore
	business string
	baseURL  string
}

// NewBusinessSink returns a sink writing into store on behalf of business.
// baseURL may be empty, in which case artifact URLs are relative.
func NewBusinessSink(store ArtifactStore, business, baseURL string) *BusinessSink {
	return &BusinessSink{
		store:    store,
		business: business,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Put implements macro.ArtifactSink.
func (s *BusinessSink) Put(ctx context.Context, name string, content []byte) (macro.ArtifactRef, error) {
	a, err := s.store.PutArtifact(ctx, s.business, name, content)
	if err != nil {
		return macro.ArtifactRef{}, err
	}
	return macro.ArtifactRef{ID: a.ID, Name: a.Name, URL: ArtifactURL(s.baseURL, a.ID)}, nil
}

// ArtifactURL is the download link of an artifact served by the HTTP API.
func ArtifactURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/api/v1/artifacts/" + id
}

var _ macro.ArtifactSink = (*BusinessSink)(nil)

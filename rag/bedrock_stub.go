//go:build !bedrock
// +build !bedrock

package rag

import (
	"fmt"

	"github.com/itsneelabh/fraudmind/core"
)

func newCloudEmbedder(cfg *core.Config) (Embedder, error) {
	return nil, fmt.Errorf("%w: binary built without bedrock support (use -tags bedrock)", core.ErrInvalidConfiguration)
}

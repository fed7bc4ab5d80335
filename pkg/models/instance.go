package models

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// Instance is one execution run of an AutomationContent.
//
// InitialData is the immutable snapshot supplied at launch; Data accumulates
// step outputs as the run progresses. Key is a content-addressed hash used for
// external correlation (e.g. webhook callbacks referencing a running
// instance). Testing marks instances created by editor dry-runs, which the
// periodic sweep ignores.
type Instance struct {
	ID          string         `json:"id"`
	ContentID   string         `json:"content_id" validate:"required"`
	InitialData map[string]any `json:"initial_data"`
	Data        map[string]any `json:"data"`
	Key         string         `json:"key"`
	Testing     bool           `json:"testing,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ComputeKey derives the correlation key from the content id and instance id.
func (i *Instance) ComputeKey() string {
	sum := sha1.Sum(fmt.Appendf(nil, "%s-%s", i.ContentID, i.ID))

	return hex.EncodeToString(sum[:])
}

// MergeData shallow-merges step output into the instance's accumulated data.
func (i *Instance) MergeData(out map[string]any) {
	if len(out) == 0 {
		return
	}

	if i.Data == nil {
		i.Data = make(map[string]any, len(out))
	}

	for k, v := range out {
		i.Data[k] = v
	}
}

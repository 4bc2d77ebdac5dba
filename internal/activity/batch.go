package activity

import (
	"strconv"
	"time"
)

// Batch is the delivery envelope pushed to a stream.
type Batch struct {
	Activities []*Activity `json:"activities"`
	Watermark  string      `json:"watermark"`
}

// NewBatch wraps activities with a fresh time-based watermark.
func NewBatch(activities ...*Activity) *Batch {
	if activities == nil {
		activities = []*Activity{}
	}
	return &Batch{
		Activities: activities,
		Watermark:  strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
}

// WithWatermark overrides the generated watermark when w is non-empty.
func (b *Batch) WithWatermark(w string) *Batch {
	if w != "" {
		b.Watermark = w
	}
	return b
}

// ToMap converts the batch into plain JSON-compatible data.
func (b *Batch) ToMap() (map[string]any, error) {
	return toMap(b)
}

// BatchFromMap decodes a batch from plain data.
func BatchFromMap(m map[string]any) (*Batch, error) {
	var b Batch
	if err := fromMap(m, &b); err != nil {
		return nil, err
	}
	if b.Activities == nil {
		b.Activities = []*Activity{}
	}
	for _, a := range b.Activities {
		if a != nil {
			a.normalize()
		}
	}
	return &b, nil
}

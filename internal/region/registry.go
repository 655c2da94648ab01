// Package region keeps the named monitoring zones of a camera view and maps
// detection boxes onto them.
//
// Regions are matched in insertion order and the first overlapping region
// wins, so a box that straddles two zones is always attributed to the one
// that was drawn first. Overwriting an existing label keeps its position.
package region

import (
	"errors"
	"fmt"

	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/utils"
)

// Unknown is assigned to boxes that overlap no region.
const Unknown = "Unknown"

var ErrInvalidRegion = errors.New("invalid region")

type Region struct {
	Label string        `json:"label"`
	Rect  forecourt.Box `json:"rect"`
}

// Registry is not safe for concurrent use; callers serialize access.
type Registry struct {
	order []string
	rects map[string]forecourt.Box
}

func NewRegistry() *Registry {
	return &Registry{
		rects: make(map[string]forecourt.Box),
	}
}

// Upsert inserts or overwrites a region after normalizing its label and corners.
func (r *Registry) Upsert(label string, rect forecourt.Box) (Region, error) {
	label = utils.NormalizeLabel(label)
	if label == "" {
		return Region{}, fmt.Errorf("%w: label is required", ErrInvalidRegion)
	}
	if label == Unknown {
		return Region{}, fmt.Errorf("%w: label %q is reserved", ErrInvalidRegion, Unknown)
	}
	if !rect.Finite() {
		return Region{}, fmt.Errorf("%w: coordinates must be finite numbers", ErrInvalidRegion)
	}

	rect = rect.Normalize()
	if rect.Empty() {
		return Region{}, fmt.Errorf("%w: %q has zero width or height", ErrInvalidRegion, label)
	}

	if _, exists := r.rects[label]; !exists {
		r.order = append(r.order, label)
	}
	r.rects[label] = rect

	return Region{Label: label, Rect: rect}, nil
}

// Assign returns the label of the first-inserted region overlapping box, or Unknown.
func (r *Registry) Assign(box forecourt.Box) string {
	for _, label := range r.order {
		if box.Overlaps(r.rects[label]) {
			return label
		}
	}
	return Unknown
}

func (r *Registry) Get(label string) (Region, bool) {
	rect, ok := r.rects[label]
	if !ok {
		return Region{}, false
	}
	return Region{Label: label, Rect: rect}, true
}

// Regions returns a copy of all regions in insertion order.
func (r *Registry) Regions() []Region {
	result := make([]Region, 0, len(r.order))
	for _, label := range r.order {
		result = append(result, Region{Label: label, Rect: r.rects[label]})
	}
	return result
}

func (r *Registry) Labels() []string {
	labels := make([]string, len(r.order))
	copy(labels, r.order)
	return labels
}

func (r *Registry) Len() int {
	return len(r.order)
}

package raster

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/model"
)

// ErrEmptyCollection is returned when an operation needs at least one image.
var ErrEmptyCollection = eris.New("raster: empty collection")

// Collection is an ordered set of images. Every operation returns a new
// collection and leaves the receiver untouched.
type Collection struct {
	images []*Image
}

// NewCollection wraps images in a collection.
func NewCollection(images ...*Image) *Collection {
	return &Collection{images: append([]*Image(nil), images...)}
}

// Size is the number of images.
func (c *Collection) Size() int {
	return len(c.images)
}

// Images returns the images in order.
func (c *Collection) Images() []*Image {
	return append([]*Image(nil), c.images...)
}

// First returns the first image.
func (c *Collection) First() (*Image, error) {
	if len(c.images) == 0 {
		return nil, ErrEmptyCollection
	}
	return c.images[0], nil
}

// Filter keeps the images for which keep returns true.
func (c *Collection) Filter(keep func(*Image) bool) *Collection {
	out := &Collection{}
	for _, im := range c.images {
		if keep(im) {
			out.images = append(out.images, im)
		}
	}
	return out
}

// FilterDate keeps images acquired within r, inclusive of both ends.
func (c *Collection) FilterDate(r model.DateRange) *Collection {
	return c.Filter(func(im *Image) bool { return r.Contains(im.Time) })
}

// FilterBounds keeps images whose footprint intersects region.
func (c *Collection) FilterBounds(region model.BoundingBox) *Collection {
	return c.Filter(func(im *Image) bool { return im.Footprint().Intersects(region) })
}

// FilterCloudCover keeps images whose scene cloud percentage is strictly
// below maxPct.
func (c *Collection) FilterCloudCover(maxPct float64) *Collection {
	return c.Filter(func(im *Image) bool { return im.CloudCover < maxPct })
}

// Map applies fn to every image. The first error aborts.
func (c *Collection) Map(fn func(*Image) (*Image, error)) (*Collection, error) {
	out := &Collection{images: make([]*Image, 0, len(c.images))}
	for _, im := range c.images {
		m, err := fn(im)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: map image %s", im.ID)
		}
		out.images = append(out.images, m)
	}
	return out, nil
}

// SortByTime returns the images ordered by acquisition time, oldest first.
func (c *Collection) SortByTime() *Collection {
	out := NewCollection(c.images...)
	sort.SliceStable(out.images, func(i, j int) bool {
		return out.images[i].Time.Before(out.images[j].Time)
	})
	return out
}

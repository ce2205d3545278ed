package spt

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Region is the subset of aggregated points inside a polygon
type Region struct {
	Name    string               `json:"name"`
	Polygon orb.Ring             `json:"-"`
	Points  []DisplacementRecord `json:"points"`
	Count   int                  `json:"count"`
	Rho     []float64            `json:"rho"`
}

// ParsePolygon reads vertices written as "x1,y1;x2,y2;..."
func ParsePolygon(s string) ([]Point, error) {
	var vertices []Point
	for i, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		xy := strings.Split(pair, ",")
		if len(xy) != 2 {
			return nil, fmt.Errorf("vertex %d: want \"x,y\", got %q", i+1, pair)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("vertex %d x: %w", i+1, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("vertex %d y: %w", i+1, err)
		}
		vertices = append(vertices, Point{X: x, Y: y})
	}
	if len(vertices) < 3 {
		return nil, ErrPolygonTooSmall
	}
	return vertices, nil
}

// LoadPolygonGeoJSON reads the outer ring of the first polygon in a GeoJSON
// geometry, feature or feature collection
func LoadPolygonGeoJSON(path string) ([]Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading polygon file: %w", err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing GeoJSON: %w", err)
	}

	var geoms []orb.Geometry
	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parsing feature collection: %w", err)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("parsing feature: %w", err)
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("parsing geometry: %w", err)
		}
		geoms = append(geoms, g.Geometry())
	}

	for _, g := range geoms {
		var ring orb.Ring
		switch p := g.(type) {
		case orb.Polygon:
			if len(p) > 0 {
				ring = p[0]
			}
		case orb.MultiPolygon:
			if len(p) > 0 && len(p[0]) > 0 {
				ring = p[0][0]
			}
		case orb.Ring:
			ring = p
		}
		if ring == nil {
			continue
		}
		vertices := make([]Point, 0, len(ring))
		for _, pt := range ring {
			vertices = append(vertices, Point{X: pt[0], Y: pt[1]})
		}
		if len(vertices) < 3 {
			return nil, ErrPolygonTooSmall
		}
		return vertices, nil
	}
	return nil, fmt.Errorf("no polygon found in %s", path)
}

// closedRing converts vertices into an orb ring, closing it if needed
func closedRing(vertices []Point) orb.Ring {
	ring := make(orb.Ring, 0, len(vertices)+1)
	for _, v := range vertices {
		ring = append(ring, orb.Point{v.X, v.Y})
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

// ExtractRegion selects the points lying inside the polygon, boundary
// included. Points keep their input order.
func ExtractRegion(points []DisplacementRecord, vertices []Point) (Region, error) {
	if len(vertices) < 3 {
		return Region{}, ErrPolygonTooSmall
	}
	ring := closedRing(vertices)
	bound := ring.Bound()

	region := Region{Polygon: ring}
	for _, p := range points {
		pt := orb.Point{p.X, p.Y}
		if !bound.Contains(pt) {
			continue
		}
		if planar.RingContains(ring, pt) {
			region.Points = append(region.Points, p)
			region.Rho = append(region.Rho, p.Rho)
		}
	}
	region.Count = len(region.Points)
	return region, nil
}

// FeatureCollection returns the region as GeoJSON: the polygon plus one point
// feature per selected record
func (r Region) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	poly := geojson.NewFeature(orb.Polygon{r.Polygon})
	poly.Properties["name"] = r.Name
	poly.Properties["count"] = r.Count
	fc.Append(poly)

	for _, p := range r.Points {
		f := geojson.NewFeature(orb.Point{p.X, p.Y})
		f.Properties["track"] = p.TrackID
		f.Properties["frame"] = p.Frame
		f.Properties["rho"] = p.Rho
		f.Properties["theta"] = p.Theta
		f.Properties["framecount"] = p.FrameCount
		fc.Append(f)
	}
	return fc
}

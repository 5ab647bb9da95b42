package itinerary

import (
	"errors"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"dispatch_tracker/internal/planning"
)

// ErrTooFewPoints means fewer than two stops of the trip have coordinates.
var ErrTooFewPoints = errors.New("itinerary: at least two stops with coordinates are required")

// RouteLine joins the trip's located stops in sequence order. It is a
// straight-line display path, not a road route.
func RouteLine(snap planning.Snapshot) (*geom.LineString, error) {
	var coords []geom.Coord
	for _, e := range snap.Entries {
		if e.Stop.Latitude == nil || e.Stop.Longitude == nil {
			continue
		}
		coords = append(coords, geom.Coord{*e.Stop.Longitude, *e.Stop.Latitude})
	}
	if len(coords) < 2 {
		return nil, ErrTooFewPoints
	}
	return geom.NewLineString(geom.XY).SetCoords(coords)
}

// RouteFeature wraps RouteLine as a GeoJSON feature.
func RouteFeature(snap planning.Snapshot) (*geojson.Feature, error) {
	line, err := RouteLine(snap)
	if err != nil {
		return nil, err
	}
	return &geojson.Feature{
		Geometry: line,
		Properties: map[string]interface{}{
			"trip_id": snap.Trip.ID,
			"name":    snap.Trip.Name,
			"points":  line.NumCoords(),
		},
	}, nil
}

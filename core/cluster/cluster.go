// Package cluster groups pending orders into spatially coherent clusters so
// the solver receives bounded-size problems. Clusters are derived per ingest
// cycle and never stored.
package cluster

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/citydrop/dispatch/core/model"
)

// Cluster is a proximity group of orders with its pickup centroid.
type Cluster struct {
	Centroid model.GeoPoint
	OrderIDs []string
}

type group struct {
	lats, lons []float64
	ids        []string
}

func (g *group) centroid() model.GeoPoint {
	return model.GeoPoint{Lat: stat.Mean(g.lats, nil), Lon: stat.Mean(g.lons, nil)}
}

func (g *group) absorb(other *group) {
	g.lats = append(g.lats, other.lats...)
	g.lons = append(g.lons, other.lons...)
	g.ids = append(g.ids, other.ids...)
}

// Group runs an agglomerative pass over the orders' pickup coordinates.
// biasMeters bounds the centroid distance between two groups that may still
// merge, which caps the intra-cluster spread. Empty input yields no
// clusters.
func Group(orders []model.Order, biasMeters float64) []Cluster {
	if len(orders) == 0 {
		return nil
	}
	groups := make([]*group, 0, len(orders))
	for _, o := range orders {
		groups = append(groups, &group{
			lats: []float64{o.Pickup.Lat},
			lons: []float64{o.Pickup.Lon},
			ids:  []string{o.ID},
		})
	}

	// Merge the closest pair until no pair is within the bias.
	for len(groups) > 1 {
		bi, bj := -1, -1
		best := biasMeters
		for i := 0; i < len(groups); i++ {
			ci := groups[i].centroid()
			for j := i + 1; j < len(groups); j++ {
				if d := ci.DistanceMeters(groups[j].centroid()); d <= best {
					best, bi, bj = d, i, j
				}
			}
		}
		if bi < 0 {
			break
		}
		groups[bi].absorb(groups[bj])
		groups = append(groups[:bj], groups[bj+1:]...)
	}

	out := make([]Cluster, 0, len(groups))
	for _, g := range groups {
		sort.Strings(g.ids)
		out = append(out, Cluster{Centroid: g.centroid(), OrderIDs: g.ids})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIDs[0] < out[j].OrderIDs[0] })
	return out
}

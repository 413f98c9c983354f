package utils_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"

	"github.com/openkaarten-service/internal/pkg/utils"
)

func TestWithinWGS84(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want bool
	}{
		{"point", orb.Point{5.12, 52.09}, true},
		{"rd point", orb.Point{155000, 463000}, false},
		{"polygon", orb.Polygon{{{4, 52}, {5, 52}, {5, 53}, {4, 52}}}, true},
		{"collection with bad member", orb.Collection{orb.Point{1, 1}, orb.Point{1, 95}}, false},
		{"nil", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, utils.WithinWGS84(tt.geom))
		})
	}
}

func TestCountPoints(t *testing.T) {
	g := orb.MultiPolygon{
		{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		{{{2, 2}, {3, 2}, {3, 3}, {2, 2}}, {{2.1, 2.1}, {2.2, 2.1}, {2.1, 2.2}, {2.1, 2.1}}},
	}
	assert.Equal(t, 12, utils.CountPoints(g))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "speeltuinen-utrecht", utils.Slugify("  Speeltuinen  Utrecht! "))
	assert.Equal(t, "", utils.Slugify("!!!"))
}

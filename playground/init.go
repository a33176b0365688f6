// Package playground holds example processing units for trying forge out.
package playground

import (
	"github.com/beamline/forge/unit"
)

func init() {
	unit.Register("CountAnimals", func() unit.Unit { return &Counter{} })
}

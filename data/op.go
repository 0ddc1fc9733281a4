// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"fmt"
	"strconv"
)

// Op is one in-place step applied to a run's events before binning.
type Op interface {
	GetDescription() string
	Run(ev *EventSet) error
}

type OpArray []Op

// Run applies the ops in order and stops at the first failure.
func (ops OpArray) Run(ev *EventSet) error {
	for i, o := range ops {
		if err := o.Run(ev); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, o.GetDescription(), err)
		}
	}
	return nil
}

// Describe lists the ops one per line, numbered.
func (ops OpArray) Describe() string {
	var desc string
	for i, o := range ops {
		desc += strconv.Itoa(i) + ") "
		desc += o.GetDescription()
		if i < len(ops)-1 {
			desc += "\n"
		}
	}
	return desc
}

// OutlierOp removes events beyond nSigma on energy or time.
func OutlierOp(nSigma float64) Op {
	return EventOp{
		Description: fmt.Sprintf("Removes energy and time outliers beyond %g sigma", nSigma),
		EventProcessor: func(ev *EventSet) error {
			RemoveOutliers(ev, nSigma)
			return nil
		},
	}
}

// BunchOp removes events outside a bunch range.
func BunchOp(r BunchRange) Op {
	return EventOp{
		Description: fmt.Sprintf("Keeps %s ids in [%g, %g]", r.Type, r.Min, r.Max),
		EventProcessor: func(ev *EventSet) error {
			_, err := FilterBunches(ev, r)
			return err
		},
	}
}

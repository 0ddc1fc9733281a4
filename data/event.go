// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

type EventProcessor func(*EventSet) error

type EventOp struct {
	Description    string
	EventProcessor EventProcessor
}

func (o EventOp) GetDescription() string {
	return o.Description
}

func (o EventOp) Run(ev *EventSet) error {
	if o.EventProcessor == nil {
		return nil
	}
	return o.EventProcessor(ev)
}

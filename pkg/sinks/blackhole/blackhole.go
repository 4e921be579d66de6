/*
Copyright 2023 The Ticketfuse Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package blackhole is a sink to emulate /dev/null
package blackhole

import (
	"context"

	"github.com/ticketfuse/ticketfuse/pkg/events"
)

// Blackhole is a sink to emulate /dev/null.
type Blackhole struct {
	name         string
	pipelineName string
}

// NewBlackhole returns Blackhole type.
func NewBlackhole(pipelineName string) *Blackhole {
	return &Blackhole{name: "blackhole", pipelineName: pipelineName}
}

// GetName returns the name.
func (b *Blackhole) GetName() string {
	return b.name
}

// Write discards the records.
func (b *Blackhole) Write(_ context.Context, records []*events.JoinedRecord) []error {
	return make([]error, len(records))
}

func (b *Blackhole) Close() error {
	return nil
}

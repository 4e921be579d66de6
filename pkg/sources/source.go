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

// Package sources defines the contract of the input channels delivering
// raw booking/payment messages to the pipeline. Delivery is assumed to
// be at-least-once, unordered within and across streams.
package sources

import (
	"time"

	"github.com/ticketfuse/ticketfuse/pkg/events"
)

// RawMessage is one undecoded message of one of the two streams.
type RawMessage struct {
	Stream  events.StreamTag
	Payload []byte
	// EventTime is the broker timestamp when available, else the
	// arrival time. The decoder only falls back to it when the payload
	// carries no usable time of its own.
	EventTime time.Time
}

// Sourcer reads raw messages from an external system and forwards them
// to the out channel handed to its constructor.
type Sourcer interface {
	// GetName returns the name of the source.
	GetName() string
	// Start begins forwarding messages to the out channel.
	Start() error
	// Stop stops reading. It blocks until all reader goroutines exited;
	// no sends to the out channel happen after it returns.
	Stop()
	// Close releases the underlying resources.
	Close() error
}

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

package blackhole

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ticketfuse/ticketfuse/pkg/events"
)

func TestBlackholeWrite(t *testing.T) {
	b := NewBlackhole("test-pipeline")
	errs := b.Write(context.Background(), []*events.JoinedRecord{{OrderID: "o1"}})
	assert.Len(t, errs, 1)
	assert.NoError(t, errs[0])
	assert.NoError(t, b.Close())
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesPicksLargestFittingPrefix(t *testing.T) {
	assert.Equal(t, "512 B", Bytes(512))
	assert.Equal(t, "1.50 KiB", Bytes(1536))
	assert.Equal(t, "1.00 MiB", Bytes(MiB))
	assert.Equal(t, "2.00 GiB", Bytes(2*GiB))
	assert.Equal(t, "1.00 TiB", Bytes(TiB))
}

func TestRateAppendsPerSecondSuffix(t *testing.T) {
	assert.Equal(t, "1.00 MiB/s", Rate(MiB))
}

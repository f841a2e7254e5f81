// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetBoolEnv(t *testing.T) {
	const envVar = "CORPUSRUNNER_TEST_BOOL"

	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"upper TRUE", "TRUE", false, true},
		{"one", "1", false, true},
		{"yes", "yes", false, true},
		{"enabled", "Enabled", false, true},
		{"false", "false", true, false},
		{"zero", "0", true, false},
		{"off", "OFF", true, false},
		{"disabled", "disabled", true, false},
		{"empty uses default true", "", true, true},
		{"empty uses default false", "", false, false},
		{"whitespace uses default", "   ", true, true},
		{"other value is on", "verbose", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envVar, tt.value)
			assert.Equal(t, tt.want, GetBoolEnv(envVar, tt.defaultValue))
		})
	}
}

func TestAnyBoolEnv(t *testing.T) {
	t.Setenv("CORPUSRUNNER_TEST_A", "")
	t.Setenv("CORPUSRUNNER_TEST_B", "0")
	assert.False(t, AnyBoolEnv("CORPUSRUNNER_TEST_A", "CORPUSRUNNER_TEST_B"))

	t.Setenv("CORPUSRUNNER_TEST_B", "yes")
	assert.True(t, AnyBoolEnv("CORPUSRUNNER_TEST_A", "CORPUSRUNNER_TEST_B"))
}

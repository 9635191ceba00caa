/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name: "mutex on arena",
			args: []string{"--strategy", "mutex", "--system", "arena", "--arena", "8388608", "--workers", "4"},
		},
		{
			name: "lockfree on cached",
			args: []string{"--strategy", "lockfree", "--system", "cached", "--workers", "4"},
		},
		{
			name: "unsafe single worker",
			args: []string{"--strategy", "unsafe", "--system", "heap", "--workers", "1"},
		},
		{
			name:    "unsafe with many workers",
			args:    []string{"--strategy", "unsafe", "--system", "heap", "--workers", "2"},
			wantErr: "requires --workers=1",
		},
		{
			name:    "unknown strategy",
			args:    []string{"--strategy", "spin", "--system", "heap", "--workers", "1"},
			wantErr: "unknown strategy",
		},
		{
			name:    "unknown system",
			args:    []string{"--strategy", "mutex", "--system", "disk", "--workers", "1"},
			wantErr: "unknown system allocator",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(append(tt.args, "--rounds", "2000", "--maxsize", "4096"))
			err := rootCmd.Execute()
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

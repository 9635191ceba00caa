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

package freelist

import (
	"fmt"
	"strings"
)

// Strategy selects how a Pool synchronizes access to its free list head.
type Strategy uint8

const (
	// Unsafe uses no synchronization. The pool must only be used by one goroutine at a time.
	Unsafe Strategy = iota

	// Mutex guards every take and give, including refills, with one lock per class.
	Mutex

	// LockFree uses a CAS based stack with a refill rendezvous.
	LockFree
)

var strategyNames = [...]string{
	Unsafe:   "unsafe",
	Mutex:    "mutex",
	LockFree: "lockfree",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", s)
}

// ParseStrategy returns the Strategy named by s, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	for i, name := range strategyNames {
		if strings.EqualFold(s, name) {
			return Strategy(i), nil
		}
	}
	return Unsafe, fmt.Errorf("unknown strategy %q", s)
}

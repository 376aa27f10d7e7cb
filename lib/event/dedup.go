// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

// Latest collapses events that share an address to the one with the
// greatest CreatedAt. On equal timestamps the event seen first wins.
// Groups are returned in the order their address was first seen.
func Latest(events []Event) []Event {
	positions := make(map[Address]int, len(events))
	result := make([]Event, 0, len(events))
	for _, candidate := range events {
		address := candidate.Address()
		position, seen := positions[address]
		if !seen {
			positions[address] = len(result)
			result = append(result, candidate)
			continue
		}
		if candidate.CreatedAt > result[position].CreatedAt {
			result[position] = candidate
		}
	}
	return result
}

// LatestOne returns the newest event of events for a single address
// query, or false if events is empty.
func LatestOne(events []Event) (Event, bool) {
	latest := Latest(events)
	if len(latest) == 0 {
		return Event{}, false
	}
	best := latest[0]
	for _, candidate := range latest[1:] {
		if candidate.CreatedAt > best.CreatedAt {
			best = candidate
		}
	}
	return best, true
}

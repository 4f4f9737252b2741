// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package topic tracks which live connections watch which poll and fans
// messages out to them. Delivery is at most once with no replay: a
// subscriber that fails a send is removed and closed.
package topic

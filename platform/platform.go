// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package platform holds the LPC pin presets of the supported boards.
package platform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/u-root/lpcprog/pkg/lpc"
)

var boards = map[string]lpc.Pins{}

func register(name string, p lpc.Pins) {
	if _, ok := boards[name]; ok {
		panic("platform: duplicate board " + name)
	}
	boards[name] = p
}

// Lookup returns the pins of a board.
func Lookup(board string) (lpc.Pins, error) {
	p, ok := boards[strings.ToLower(board)]
	if !ok {
		return lpc.Pins{}, fmt.Errorf("unknown board %q, known boards: %s", board, strings.Join(Boards(), ", "))
	}
	return p, nil
}

// Boards lists the known board names in order.
func Boards() []string {
	n := make([]string, 0, len(boards))
	for k := range boards {
		n = append(n, k)
	}
	sort.Strings(n)
	return n
}

// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import (
	"time"

	"github.com/u-root/lpcprog/pkg/lpc"
)

func init() {
	// 40 pin header, LAD0-3 on pins 11, 13, 15 and 16.
	register("rpi", lpc.Pins{
		LAD:    [4]string{"GPIO17", "GPIO27", "GPIO22", "GPIO23"},
		Clock:  "GPIO24",
		Frame:  "GPIO25",
		Settle: time.Microsecond,
	})
	// Same header, keeping clear of SPI0 and the UART for boards that
	// serve over ttyAMA0.
	register("rpi-alt", lpc.Pins{
		LAD:    [4]string{"GPIO5", "GPIO6", "GPIO13", "GPIO19"},
		Clock:  "GPIO26",
		Frame:  "GPIO21",
		Settle: time.Microsecond,
	})
	// BeagleBone Black P8 header.
	register("bbb", lpc.Pins{
		LAD:    [4]string{"GPIO66", "GPIO67", "GPIO69", "GPIO68"},
		Clock:  "GPIO45",
		Frame:  "GPIO44",
		Settle: 2 * time.Microsecond,
	})
}

// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestConfigureLevel(t *testing.T) {
	defer Configure("info", "")
	if err := Configure("debug", ""); err != nil {
		t.Fatalf("Configure(debug): %v", err)
	}
	if l := LogContainer.level.Level(); l != zapcore.DebugLevel {
		t.Errorf("level = %v, want debug", l)
	}
	if err := Configure("chatty", ""); err == nil {
		t.Errorf("Configure(chatty) accepted an unknown level")
	}
}

func TestHexField(t *testing.T) {
	f := LogContainer.Hex("addr", 0xfff80000)
	if f.String != "0xfff80000" {
		t.Errorf("Hex field = %q", f.String)
	}
	if f := LogContainer.Hex("addr", 1); f.String != "0x00000001" {
		t.Errorf("Hex field = %q", f.String)
	}
}

func TestSimpleLoggerShared(t *testing.T) {
	if LogContainer.GetSimpleLogger() != LogContainer.GetSimpleLogger() {
		t.Errorf("GetSimpleLogger returned different loggers")
	}
}

func TestConfigureFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lpcprog.log")
	if err := Configure("info", file); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	LogContainer.GetSimpleLogger().Infof("probe at %x", 0xffbc0000)
	if err := Configure("info", ""); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	b, err := ioutil.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"probe at ffbc0000"`) {
		t.Errorf("log file lacks message: %s", b)
	}
}

// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/machinebox/progress"
	"golang.org/x/sync/errgroup"

	"github.com/u-root/lpcprog/pkg/metric"
	"github.com/u-root/lpcprog/pkg/qiprog"
	"github.com/u-root/lpcprog/pkg/transport"
)

var errNoChip = errors.New("no JEDEC chip found")

// identify probes the chip and fails unless a JEDEC chip answered.
func (s *session) identify() (qiprog.ChipID, error) {
	ids, err := s.dev.ReadChipID()
	if err != nil {
		return qiprog.ChipID{}, err
	}
	if ids[0].Method != qiprog.IDJEDEC {
		return ids[0], errNoChip
	}
	return ids[0], nil
}

// prepare identifies the chip and configures chip-relative addressing,
// sector erase and JEDEC programming.
func (s *session) prepare(g *Globals, autoErase bool) error {
	if _, err := s.identify(); err != nil {
		return err
	}
	var flags qiprog.EraseFlags
	if autoErase {
		flags |= qiprog.AutoErase
	}
	for _, err := range []error{
		s.dev.SetChipSize(0, uint32(g.Size)),
		s.dev.SetEraseSize(0, qiprog.EraseSize{Type: qiprog.EraseSector, Size: uint32(g.Sector)}),
		s.dev.SetEraseCommand(0, qiprog.EraseCommand{Cmd: qiprog.CommandJEDEC, Type: qiprog.EraseSector, Flags: flags}),
		s.dev.SetWriteCommand(0, qiprog.WriteCommand{Cmd: qiprog.CommandJEDEC}),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// checkRange validates n bytes at start against the chip size.
func checkRange(g *Globals, start, n uint64) error {
	if n == 0 {
		return fmt.Errorf("empty range at %#x", start)
	}
	if start+n > uint64(g.Size) {
		return fmt.Errorf("%#x bytes at %#x exceed the %#x byte chip", n, start, uint32(g.Size))
	}
	return nil
}

// copyProgress copies src to dst while printing how far it got.
func copyProgress(what string, dst io.Writer, src io.Reader, size int64) (int64, error) {
	r := progress.NewReader(src)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress.NewTicker(ctx, r, size, 200*time.Millisecond) {
			fmt.Fprintf(stderr, "%s: %d %%\r", what, int(p.Percent()))
		}
	}()
	n, err := io.Copy(dst, r)
	cancel()
	<-done
	if err == nil {
		fmt.Fprintf(stderr, "%s: complete\n", what)
	}
	return n, err
}

type probeCmd struct{}

func (c *probeCmd) Run(g *Globals) error {
	s, err := g.session()
	if err != nil {
		return err
	}
	id, err := s.identify()
	if errors.Is(err, errNoChip) {
		color.New(color.FgRed).Fprintf(stdout, "No chip answered at %08x\n", s.cfg.ProbeBase)
		return err
	}
	if err != nil {
		return err
	}
	color.New(color.FgGreen, color.Bold).Fprintf(stdout, "JEDEC chip %02x:%02x", id.VendorID, id.DeviceID)
	fmt.Fprintf(stdout, " (command mask %#x)\n", s.dev.Mask())
	return nil
}

type readCmd struct {
	Start  address `help:"First chip offset to read." default:"0"`
	Length address `help:"Bytes to read, 0 reads to the end of the chip." default:"0"`
	Out    string  `help:"Output file." short:"o" required:""`
}

func (c *readCmd) Run(g *Globals) error {
	n := uint64(c.Length)
	if n == 0 && uint64(c.Start) < uint64(g.Size) {
		n = uint64(g.Size) - uint64(c.Start)
	}
	if err := checkRange(g, uint64(c.Start), n); err != nil {
		return err
	}
	s, err := g.session()
	if err != nil {
		return err
	}
	if err := s.prepare(g, false); err != nil {
		return err
	}
	if err := s.dev.SetAddress(uint32(c.Start), uint32(uint64(c.Start)+n)); err != nil {
		return err
	}
	f, err := appFs.Create(c.Out)
	if err != nil {
		return err
	}
	if _, err := copyProgress("Reading", f, s.dev, int64(n)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type writeCmd struct {
	Start     address `help:"Chip offset to program at." default:"0"`
	In        string  `help:"Input file." short:"i" required:""`
	AutoErase bool    `help:"Erase the touched sectors first." default:"true" negatable:""`
	Verify    bool    `help:"Read back and compare after programming." default:"true" negatable:""`
}

func (c *writeCmd) Run(g *Globals) error {
	img, err := appFs.Open(c.In)
	if err != nil {
		return err
	}
	defer img.Close()
	fi, err := img.Stat()
	if err != nil {
		return err
	}
	n := uint64(fi.Size())
	if err := checkRange(g, uint64(c.Start), n); err != nil {
		return err
	}
	s, err := g.session()
	if err != nil {
		return err
	}
	if err := s.prepare(g, c.AutoErase); err != nil {
		return err
	}
	end := uint32(uint64(c.Start) + n)
	if err := s.dev.SetAddress(uint32(c.Start), end); err != nil {
		return err
	}
	if _, err := copyProgress("Writing", s.dev, img, int64(n)); err != nil {
		return err
	}
	if !c.Verify {
		return nil
	}

	if _, err := img.Seek(0, io.SeekStart); err != nil {
		return err
	}
	want, err := io.ReadAll(img)
	if err != nil {
		return err
	}
	var got bytes.Buffer
	if _, err := copyProgress("Verifying", &got, s.dev, int64(n)); err != nil {
		return err
	}
	if i := firstDiff(want, got.Bytes()); i >= 0 {
		return fmt.Errorf("verify failed at %#x", uint64(c.Start)+uint64(i))
	}
	return nil
}

func firstDiff(a, b []byte) int {
	for i := range a {
		if i >= len(b) || a[i] != b[i] {
			return i
		}
	}
	if len(b) > len(a) {
		return len(a)
	}
	return -1
}

type eraseCmd struct {
	Chip  bool    `help:"Erase the whole chip." xor:"what"`
	Start address `help:"First chip offset to erase." xor:"what"`
	End   address `help:"Chip offset to stop erasing at." default:"0"`
}

func (c *eraseCmd) Run(g *Globals) error {
	if !c.Chip {
		if c.End <= c.Start {
			return fmt.Errorf("end %#x is not past start %#x", uint32(c.End), uint32(c.Start))
		}
		if err := checkRange(g, uint64(c.Start), uint64(c.End-c.Start)); err != nil {
			return err
		}
	}
	s, err := g.session()
	if err != nil {
		return err
	}
	if err := s.prepare(g, false); err != nil {
		return err
	}
	if c.Chip {
		return s.dev.ChipErase()
	}
	log.Infof("Erasing %#x-%#x", uint32(c.Start), uint32(c.End))
	return s.dev.Erase(uint32(c.Start), uint32(c.End-c.Start))
}

type serveCmd struct {
	Port    string `help:"Serial port, overrides the configuration."`
	Baud    int    `help:"Baud rate, overrides the configuration."`
	Metrics string `help:"Metrics listen address, overrides the configuration. Empty with no configured address disables it."`
}

func (c *serveCmd) Run(g *Globals) error {
	s, err := g.session()
	if err != nil {
		return err
	}
	sc := s.cfg.Serial
	if c.Port != "" {
		sc.Port = c.Port
	}
	if c.Baud != 0 {
		sc.Baud = c.Baud
	}
	addr := s.cfg.Metrics
	if c.Metrics != "" {
		addr = c.Metrics
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	eg, ctx := errgroup.WithContext(ctx)

	if addr != "" {
		mux := http.NewServeMux()
		metric.StartMetrics(mux)
		srv := &http.Server{Addr: addr, Handler: mux}
		eg.Go(func() error {
			log.Infof("Serving metrics on %s", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}
	eg.Go(func() error {
		return transport.ServeSerial(ctx, transport.NewServer(s.dev), sc)
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

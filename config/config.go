/*
   x86emu configuration: CPU family/subtype/fpu/smm/capability selection.

   Copyright (c) 2026, The x86emu Authors

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

// Package config parses a line-oriented configuration format into a
// family.Capabilities: each line selects or tunes one CPU instance
// (family, subtype, fpu, smm format, capability bits). Device models are
// the host's concern, so nothing here attaches peripherals.
//
// Format, one directive per line:
//
//	# comment
//	family 386
//	subtype cyrix-gx2
//	fpu integrated
//	smm p5
//	flag pae
//	flag +vme
//	flag -nx
//	addrwidth 36
//	prefetch 32
package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/BinaryMelodies/x86emu/family"
)

var familyNames = map[string]family.CPUFamily{
	"8086": family.Family8086, "186": family.Family186,
	"v20": family.FamilyV20, "v33": family.FamilyV33, "v60": family.FamilyV60,
	"v25": family.FamilyV25, "v55": family.FamilyV55, "upd9002": family.FamilyUPD9002,
	"286": family.Family286, "386": family.Family386, "486": family.Family486,
	"586": family.Family586, "p6plus": family.FamilyP6Plus,
	"amdk5": family.FamilyAMDK5, "amdk6": family.FamilyAMDK6, "amdk7": family.FamilyAMDK7,
	"amd64": family.FamilyAMD64, "cyrix": family.FamilyCyrix,
	"intel64": family.FamilyIntel64, "extended": family.FamilyExtended,
}

var subtypeNames = map[string]family.CPUSubtype{
	"none": family.SubtypeNone, "386-376": family.Subtype386_376,
	"386-classic": family.Subtype386Classic,
	"cyrix-mediagx": family.SubtypeCyrixMediaGX, "cyrix-gx2": family.SubtypeCyrixGX2,
	"cyrix-lx": family.SubtypeCyrixLX, "cyrix-6x86": family.SubtypeCyrix6x86,
	"cyrix-m2": family.SubtypeCyrixM2, "cyrix-iii": family.SubtypeCyrixIII,
}

var fpuNames = map[string]family.FPUType{
	"none": family.FPUNone, "8087": family.FPU8087, "287": family.FPU287,
	"387": family.FPU387, "integrated": family.FPUIntegrated486Plus,
	"iit3c87": family.FPUIIT3C87,
}

var smmNames = map[string]family.SMMFormat{
	"none": family.SMMNone, "386sl": family.SMM80386SL, "p5": family.SMMP5,
	"p6": family.SMMP6, "p4": family.SMMP4, "k5": family.SMMK5, "k6": family.SMMK6,
	"amd64": family.SMMAMD64, "cx486slce": family.SMMCX486SLCE, "5x86": family.SMM5x86,
	"m2": family.SMMM2, "mediagx": family.SMMMediaGX, "gx2": family.SMMGX2,
}

var flagNames = map[string]uint64{
	"pae": family.CapPAE, "va57": family.CapVA57, "sep": family.CapSEP,
	"nx": family.CapNX, "lm": family.CapLM, "mpx": family.CapMPX,
	"cet": family.CapCET, "sev-es": family.CapSEVES, "apxf": family.CapAPXF,
	"pse": family.CapPSE, "vme": family.CapVME,
	"x80": family.CapX80Emulation, "x80-separate": family.CapX80Separate,
	"x89": family.CapX89,
	"cyrix-config": family.CapCyrixConfigRegs,
}

// ParseError reports the offending line number and raw text, so a syntax
// error names the line instead of just a generic message.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads a configuration stream and returns the resulting
// Capabilities, starting from DefaultCapabilities for whatever family the
// first "family" directive names (a file with no "family" line defaults
// to Family8086, the conservative baseline).
func Parse(r io.Reader) (family.Capabilities, error) {
	caps := family.DefaultCapabilities(family.Family8086)
	sc := bufio.NewScanner(r)
	lineNo := 0
	familySet := false

	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		directive := strings.ToLower(fields[0])
		args := fields[1:]

		switch directive {
		case "family":
			if len(args) != 1 {
				return caps, &ParseError{lineNo, line, fmt.Errorf("family requires one argument")}
			}
			f, ok := familyNames[strings.ToLower(args[0])]
			if !ok {
				return caps, &ParseError{lineNo, line, fmt.Errorf("unknown family %q", args[0])}
			}
			reset := caps
			caps = family.DefaultCapabilities(f)
			if familySet {
				// a later "family" line rebases defaults but keeps any
				// capability flags already set by earlier "flag" lines
				caps.Flags |= reset.Flags
			}
			familySet = true
		case "subtype":
			if len(args) != 1 {
				return caps, &ParseError{lineNo, line, fmt.Errorf("subtype requires one argument")}
			}
			s, ok := subtypeNames[strings.ToLower(args[0])]
			if !ok {
				return caps, &ParseError{lineNo, line, fmt.Errorf("unknown subtype %q", args[0])}
			}
			caps.Subtype = s
		case "fpu":
			if len(args) != 1 {
				return caps, &ParseError{lineNo, line, fmt.Errorf("fpu requires one argument")}
			}
			f, ok := fpuNames[strings.ToLower(args[0])]
			if !ok {
				return caps, &ParseError{lineNo, line, fmt.Errorf("unknown fpu %q", args[0])}
			}
			caps.FPU = f
		case "smm":
			if len(args) != 1 {
				return caps, &ParseError{lineNo, line, fmt.Errorf("smm requires one argument")}
			}
			s, ok := smmNames[strings.ToLower(args[0])]
			if !ok {
				return caps, &ParseError{lineNo, line, fmt.Errorf("unknown smm format %q", args[0])}
			}
			caps.SMM = s
		case "flag":
			for _, a := range args {
				neg := false
				name := strings.ToLower(a)
				if strings.HasPrefix(name, "+") {
					name = name[1:]
				} else if strings.HasPrefix(name, "-") {
					name = name[1:]
					neg = true
				}
				bit, ok := flagNames[name]
				if !ok {
					return caps, &ParseError{lineNo, line, fmt.Errorf("unknown flag %q", a)}
				}
				if neg {
					caps.Flags &^= bit
				} else {
					caps.Flags |= bit
				}
			}
		case "addrwidth":
			if len(args) != 1 {
				return caps, &ParseError{lineNo, line, fmt.Errorf("addrwidth requires one argument")}
			}
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return caps, &ParseError{lineNo, line, err}
			}
			caps.AddrWidth = uint(n)
		case "prefetch":
			if len(args) != 1 {
				return caps, &ParseError{lineNo, line, fmt.Errorf("prefetch requires one argument")}
			}
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return caps, &ParseError{lineNo, line, err}
			}
			caps.PrefetchQueueSize = n
		default:
			return caps, &ParseError{lineNo, line, fmt.Errorf("unknown directive %q", directive)}
		}
	}
	if err := sc.Err(); err != nil {
		return caps, err
	}
	return caps, nil
}

// ParseString is a convenience wrapper around Parse for in-memory
// configuration text (tests, embedded defaults).
func ParseString(s string) (family.Capabilities, error) {
	return Parse(strings.NewReader(s))
}

/*
Copyright (C) 2026  tlog contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package tlog

import "testing"

func TestTlogFileNameRoundTrip(t *testing.T) {
	name := tlogFileName("translog", 7)
	if name != "translog-7.tlog" {
		t.Fatalf("got %q", name)
	}
	gen, err := parseGenerationFromTlogName("translog", name)
	if err != nil {
		t.Fatalf("parseGenerationFromTlogName: %v", err)
	}
	if gen != 7 {
		t.Fatalf("got generation %d, want 7", gen)
	}
}

func TestParseGenerationRejectsMismatch(t *testing.T) {
	cases := []string{
		"other-7.tlog",
		"translog-7.ckp",
		"translog-abc.tlog",
		"translog.tlog",
	}
	for _, name := range cases {
		if _, err := parseGenerationFromTlogName("translog", name); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
}

func TestGenerationNotSet(t *testing.T) {
	if NotSet.hasValue() {
		t.Fatal("NotSet.hasValue() should be false")
	}
	if !Generation(1).hasValue() {
		t.Fatal("Generation(1).hasValue() should be true")
	}
}

func TestLocationOrdering(t *testing.T) {
	a := Location{Generation: 1, Offset: 100, Size: 10}
	b := Location{Generation: 1, Offset: 200, Size: 10}
	c := Location{Generation: 2, Offset: 0, Size: 10}

	if !a.Less(b) {
		t.Fatal("a should sort before b")
	}
	if !b.Less(c) {
		t.Fatal("b should sort before c (lower generation wins regardless of offset)")
	}
	if a.Compare(a) != 0 {
		t.Fatal("a.Compare(a) should be 0")
	}
	if maxLocation(a, b) != b {
		t.Fatalf("maxLocation(a,b) = %v, want %v", maxLocation(a, b), b)
	}
	if maxLocation(c, a) != c {
		t.Fatalf("maxLocation(c,a) = %v, want %v", maxLocation(c, a), c)
	}
}

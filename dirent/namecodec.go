package dirent

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// MaxNameUnits is the longest logical name representable as an LFN chain:
// 20 records of 13 UCS-2 units each.
const MaxNameUnits = 20 * 13

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// shortNameLegal is the FAT 8.3 legal-byte set beyond A-Z and 0-9.
const shortNameLegal = "$%'-_@~`!(){}^#&"

func is83Legal(b byte) bool {
	if b >= 'A' && b <= 'Z' {
		return true
	}
	if b >= '0' && b <= '9' {
		return true
	}
	return strings.IndexByte(shortNameLegal, b) >= 0
}

// UTF8ToUCS2 transcodes a UTF-8 string to UCS-2 code units via
// golang.org/x/text's UTF-16LE codec, then rejects any surrogate pair:
// code points outside the Basic Multilingual Plane are refused at write
// time rather than silently split into a pair.
func UTF8ToUCS2(name string) ([]uint16, error) {
	if len(name) > MaxNameUnits*3 {
		return nil, fmt.Errorf("dirent: name exceeds %d UTF-8 bytes", MaxNameUnits*3)
	}

	raw, err := utf16LE.NewEncoder().String(name)
	if err != nil {
		return nil, fmt.Errorf("dirent: invalid UTF-8 name: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("dirent: transcoded name has odd byte length")
	}

	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16([]byte(raw[2*i : 2*i+2]))
		if units[i] >= 0xD800 && units[i] <= 0xDFFF {
			return nil, fmt.Errorf("dirent: name contains a code point outside the BMP")
		}
	}
	if len(units) > MaxNameUnits {
		return nil, fmt.Errorf("dirent: name exceeds %d UCS-2 units", MaxNameUnits)
	}
	return units, nil
}

// UCS2ToUTF8 reassembles a UTF-8 string from UCS-2 code units read off
// disk. Any lone surrogate unit (a corrupted or non-BMP fragment) decodes
// to the Unicode replacement character rather than failing outright.
func UCS2ToUTF8(units []uint16) string {
	raw := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(raw[2*i:2*i+2], u)
	}
	out, err := utf16LE.NewDecoder().Bytes(raw)
	if err != nil {
		return string(rune(0xFFFD))
	}
	return string(out)
}

// Is83Form reports whether name is already a legal 8.3 short name: ".",
// "..", or a non-empty run of at most 8 legal bytes optionally followed by
// "." and a non-empty run of at most 3 legal bytes.
func Is83Form(name string) bool {
	if name == "." || name == ".." {
		return true
	}
	base, ext, hasExt := strings.Cut(name, ".")
	if len(base) == 0 || len(base) > 8 {
		return false
	}
	if hasExt && (len(ext) == 0 || len(ext) > 3) {
		return false
	}
	if hasExt && strings.Contains(ext, ".") {
		return false
	}
	for i := 0; i < len(base); i++ {
		if !is83Legal(base[i]) {
			return false
		}
	}
	for i := 0; i < len(ext); i++ {
		if !is83Legal(ext[i]) {
			return false
		}
	}
	return true
}

// EncodeShort83 converts an arbitrary UTF-8 name into the fallback 11-byte
// short-entry field: uppercase ASCII, illegal bytes replaced with '_',
// leading 0xE5 escaped to 0x05, space-padded. Leading dots and spaces are
// skipped first. If both the base and extension end up empty, the first
// byte becomes '_'.
func EncodeShort83(name string) [11]byte {
	name = strings.TrimLeft(name, ". ")

	base := name
	ext := ""
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		base, ext = name[:idx], name[idx+1:]
	}

	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	encodeInto(out[0:8], base)
	encodeInto(out[8:11], ext)

	if out[0] == ' ' {
		out[0] = '_'
	}
	if out[0] == DeletedMarker {
		out[0] = escapedE5
	}
	return out
}

func encodeInto(dst []byte, src string) {
	upper := strings.ToUpper(src)
	n := 0
	for i := 0; i < len(upper) && n < len(dst); i++ {
		c := upper[i]
		if !is83Legal(c) {
			c = '_'
		}
		dst[n] = c
		n++
	}
}

// GenerateShortName derives a collision-free 8.3 short name for a
// non-8.3-legal logical name, using the conventional "~N" numeric-tail
// scheme: the first six legal uppercase base characters plus "~" and a
// decimal disambiguator, truncated so the whole base stays within 8 bytes.
// collides is called with each candidate's raw 11-byte form and must report
// whether that short name is already in use in the target directory.
func GenerateShortName(name string, collides func([11]byte) bool) ([11]byte, error) {
	candidate := EncodeShort83(name)

	base := strings.TrimRight(string(candidate[0:8]), " ")
	if len(base) > 6 {
		base = base[:6]
	}
	ext := candidate[8:11]

	for n := 1; n <= 999_999; n++ {
		tail := fmt.Sprintf("~%d", n)
		truncated := base
		if len(truncated)+len(tail) > 8 {
			truncated = truncated[:8-len(tail)]
		}

		var out [11]byte
		for i := range out {
			out[i] = ' '
		}
		copy(out[0:], []byte(truncated+tail))
		copy(out[8:11], ext[:])

		if !collides(out) {
			return out, nil
		}
	}
	return [11]byte{}, fmt.Errorf("dirent: exhausted ~N short-name disambiguators for %q", name)
}

// Package mountopts parses comma-separated mount option strings
// ("ro"/"rw", "cache=N[%|K|M|G]") into a fatfs.MountFlags value and a
// block-cache capacity, via a lookup table of known option names to
// parser functions rather than a hand-rolled switch per token. Unknown
// keys are reported as warnings rather than errors: a mount never fails
// over an option it doesn't recognize.
package mountopts

import (
	"strconv"
	"strings"

	"github.com/go-fatfs/fatfs"
)

// DefaultCacheSectors is used when no "cache=" option is given.
const DefaultCacheSectors = 256

// Options is the parsed result of a mount option string.
type Options struct {
	Flags        fatfs.MountFlags
	CacheSectors uint
}

type parser func(value string, out *Options) (warning string, ok bool)

var knownOptions = map[string]parser{
	"ro": func(_ string, out *Options) (string, bool) {
		out.Flags |= fatfs.MountReadOnly
		out.Flags &^= fatfs.MountReadWrite
		return "", true
	},
	"rw": func(_ string, out *Options) (string, bool) {
		out.Flags |= fatfs.MountReadWrite
		out.Flags &^= fatfs.MountReadOnly
		return "", true
	},
	"nocheck": func(_ string, out *Options) (string, bool) {
		out.Flags |= fatfs.MountNoCheck
		return "", true
	},
	"cache": func(value string, out *Options) (string, bool) {
		n, unit, warning, ok := parseCacheValue(value)
		if !ok {
			return warning, false
		}
		out.CacheSectors = n
		_ = unit
		return "", true
	},
}

// Parse splits a comma-separated option string ("rw,cache=512") into an
// Options value, defaulting to read-write with DefaultCacheSectors. Unknown
// keys and malformed values are returned as warnings rather than errors:
// a mount never fails because of an option it doesn't recognize.
func Parse(raw string) (Options, []string) {
	out := Options{Flags: fatfs.MountReadWrite, CacheSectors: DefaultCacheSectors}
	var warnings []string

	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		key, value, _ := strings.Cut(token, "=")
		fn, known := knownOptions[key]
		if !known {
			warnings = append(warnings, "unrecognized mount option: "+token)
			continue
		}
		if warning, ok := fn(value, &out); !ok {
			warnings = append(warnings, warning)
		}
	}

	return out, warnings
}

// parseCacheValue parses "N", "N%", "NK", "NM", or "NG" into a sector
// count. A percent value is passed through as the raw number with unit "%";
// the cache option ignores the unit, so "N%" is stored as N sectors rather
// than as a percentage.
func parseCacheValue(value string) (n uint, unit string, warning string, ok bool) {
	if value == "" {
		return 0, "", "cache= requires a value", false
	}

	suffix := value[len(value)-1]
	numeric := value
	switch suffix {
	case '%', 'K', 'k', 'M', 'm', 'G', 'g':
		numeric = value[:len(value)-1]
		unit = strings.ToUpper(string(suffix))
	default:
		unit = ""
	}

	parsed, err := strconv.ParseUint(numeric, 10, 64)
	if err != nil {
		return 0, "", "invalid cache= value: " + value, false
	}

	switch unit {
	case "":
		return uint(parsed), unit, "", true
	case "%":
		return uint(parsed), unit, "", true
	case "K":
		return uint(parsed * 1024 / 512), unit, "", true
	case "M":
		return uint(parsed * 1024 * 1024 / 512), unit, "", true
	case "G":
		return uint(parsed * 1024 * 1024 * 1024 / 512), unit, "", true
	default:
		return 0, "", "invalid cache= unit in: " + value, false
	}
}

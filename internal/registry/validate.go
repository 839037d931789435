package registry

import (
	"strings"
)

// Field length limits, in bytes.
const (
	MaxNameLen        = 64
	MaxURLLen         = 256
	MaxMetadataURILen = 256
	MaxCategoryLen    = 32
	MaxTagsLen        = 128
	MaxNotesLen       = 256
	MaxLabelLen       = 64
	MaxDescriptionLen = 512
	MaxLifecycleNote  = 256

	MaxFeeBps = 10_000

	// SchemaVersion is stamped on newly created Config and Repo records.
	SchemaVersion uint8 = 1
)

// Default observation caps.
const (
	DefaultMaxLinesPerObservation uint64 = 100_000_000
	DefaultMaxFilesPerObservation uint32 = 1_000_000
)

// ObservationLimits caps a single observation.
type ObservationLimits struct {
	MaxLinesOfCode    uint64 `json:"max_lines_of_code"`
	MaxFilesProcessed uint32 `json:"max_files_processed"`
}

// DefaultObservationLimits returns the built-in caps.
func DefaultObservationLimits() ObservationLimits {
	return ObservationLimits{
		MaxLinesOfCode:    DefaultMaxLinesPerObservation,
		MaxFilesProcessed: DefaultMaxFilesPerObservation,
	}
}

// AllowedURISchemes are the prefixes accepted for metadata and changelog URIs.
var AllowedURISchemes = []string{"http://", "https://", "ipfs://", "ar://"}

func requireNonEmpty(field, v string) error {
	if v == "" {
		return newError(CodeStringEmpty, "%s is required", field)
	}
	return nil
}

func requireMaxLen(field, v string, max int) error {
	if len(v) > max {
		return newError(CodeStringTooLong, "%s exceeds %d bytes", field, max)
	}
	return nil
}

func requireString(field, v string, max int) error {
	if err := requireNonEmpty(field, v); err != nil {
		return err
	}
	return requireMaxLen(field, v, max)
}

func requireURI(field, v string, max int) error {
	if err := requireString(field, v, max); err != nil {
		return err
	}
	for _, scheme := range AllowedURISchemes {
		if strings.HasPrefix(v, scheme) && len(v) > len(scheme) {
			return nil
		}
	}
	return newError(CodeMetadataInvalid, "%s must start with one of %s", field, strings.Join(AllowedURISchemes, ", "))
}

// optionalURI accepts an empty value, otherwise applies requireURI.
func optionalURI(field, v string, max int) error {
	if v == "" {
		return nil
	}
	return requireURI(field, v, max)
}

func validateFeeBps(fee uint16) error {
	if fee > MaxFeeBps {
		return newError(CodeInvalidFeeBps, "fee_bps %d exceeds %d", fee, MaxFeeBps)
	}
	return nil
}

func validateMaxModules(n uint32) error {
	if n == 0 {
		return newError(CodeValueOutOfRange, "max_modules_per_repo must be at least 1")
	}
	return nil
}

// preview truncates s to at most n bytes without splitting a UTF-8 sequence.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

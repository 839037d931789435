package registry

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCheckedArithmetic(t *testing.T) {
	v, err := checkedAdd(math.MaxUint64-1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), v)

	v, err = checkedAdd(math.MaxUint64, 1)
	assert.True(t, errors.Is(err, ErrCounterOverflow))
	assert.Equal(t, uint64(math.MaxUint64), v, "value must not wrap")

	_, err = checkedSub(0, 1)
	assert.ErrorIs(t, err, ErrCounterOverflow)

	n, err := checkedInc32(math.MaxUint32)
	assert.ErrorIs(t, err, ErrCounterOverflow)
	assert.Equal(t, uint32(math.MaxUint32), n)
}

func TestMetrics_IncrementOverflow(t *testing.T) {
	m := &Metrics{TotalRepos: math.MaxUint64, TotalForks: 0}
	assert.ErrorIs(t, m.IncrementRepos(), ErrCounterOverflow)
	assert.Equal(t, uint64(math.MaxUint64), m.TotalRepos)

	assert.ErrorIs(t, m.DecrementForks(), ErrCounterOverflow)
	assert.Equal(t, uint64(0), m.TotalForks)

	require.NoError(t, m.IncrementModules())
	require.NoError(t, m.DecrementModules())
	assert.Equal(t, uint64(0), m.TotalModules)
}

func TestMetrics_RecordObservationIsAllOrNothing(t *testing.T) {
	limits := ObservationLimits{MaxLinesOfCode: math.MaxUint64, MaxFilesProcessed: math.MaxUint32}
	m := &Metrics{
		TotalObservations:   5,
		TotalLinesOfCode:    10,
		TotalFilesProcessed: math.MaxUint64,
	}

	err := m.RecordObservation(1, 1, limits, testNow)
	assert.ErrorIs(t, err, ErrCounterOverflow)
	assert.Equal(t, uint64(5), m.TotalObservations)
	assert.Equal(t, uint64(10), m.TotalLinesOfCode)
	assert.Nil(t, m.LastObservationAt)

	m.TotalFilesProcessed = 0
	require.NoError(t, m.RecordObservation(1, 1, limits, testNow))
	assert.Equal(t, uint64(6), m.TotalObservations)
	assert.Equal(t, testNow, *m.LastObservationAt)
}

func TestMetricsAdjustment_IsEmpty(t *testing.T) {
	assert.True(t, MetricsAdjustment{}.IsEmpty())
	one := uint64(1)
	assert.False(t, MetricsAdjustment{TotalForks: &one}.IsEmpty())
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", preview("abc", 64))
	assert.Equal(t, "ab", preview("abcdef", 2))
	// "é" is two bytes; cutting inside it backs off to the rune start
	assert.Equal(t, "a", preview("aé", 2))
	assert.Len(t, preview(strings.Repeat("x", 100), 64), 64)
}

func TestRequireURI(t *testing.T) {
	for _, ok := range []string{"http://a", "https://a/b", "ipfs://Qm", "ar://tx"} {
		assert.NoError(t, requireURI("uri", ok, 256), ok)
	}
	assert.ErrorIs(t, requireURI("uri", "", 256), ErrStringEmpty)
	assert.ErrorIs(t, requireURI("uri", "ipfs://", 256), ErrMetadataInvalid)
	assert.ErrorIs(t, requireURI("uri", "HTTP://A", 256), ErrMetadataInvalid)
	assert.ErrorIs(t, requireURI("uri", "https://"+strings.Repeat("a", 256), 256), ErrStringTooLong)
	assert.NoError(t, optionalURI("uri", "", 256))
}

func TestErrorClasses(t *testing.T) {
	cases := map[Code]Class{
		CodeInvalidFeeBps:           ClassValidation,
		CodeInvalidAdmin:            ClassAuthorization,
		CodeModuleLimitReached:      ClassState,
		CodeObservationDataTooLarge: ClassArithmetic,
		CodeNotFound:                ClassStructural,
		CodeInternalError:           ClassStructural,
	}
	for code, class := range cases {
		assert.Equal(t, class, code.Class(), string(code))
	}

	err := newError(CodeRepoInactive, "repo %s is inactive", "x")
	assert.Equal(t, "RepoInactive: repo x is inactive", err.Error())
	assert.Equal(t, ClassState, ClassOf(err))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))

	wrapped := internalError("failed to load", errors.New("disk"))
	assert.ErrorIs(t, wrapped, ErrInternal)
	assert.EqualError(t, errors.Unwrap(wrapped), "disk")
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 1, Minor: 2, Patch: 3}, v)
	assert.Equal(t, "1.2.3", v.String())

	_, err = ParseVersion("1.2.3-beta")
	assert.Error(t, err)

	assert.Equal(t, -1, Version{Major: 1}.Compare(Version{Major: 1, Patch: 1}))
	assert.Equal(t, 1, Version{Major: 2}.Compare(Version{Major: 1, Minor: 9}))
	assert.Equal(t, 0, Version{Minor: 3}.Compare(Version{Minor: 3}))
}

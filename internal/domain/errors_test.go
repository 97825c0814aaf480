package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_StatusByKind(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewClientInputError("x", nil).StatusCode())
	assert.Equal(t, http.StatusBadRequest, NewAlgorithmFailure("x", ErrNoResult).StatusCode())
	assert.Equal(t, http.StatusInternalServerError, NewUnhandledProcessingError("x", nil).StatusCode())
}

func TestStatusCode_UnwrapsAndDefaults(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewAlgorithmFailure("failed to compute difference", ErrNoResult))
	assert.Equal(t, http.StatusBadRequest, StatusCode(wrapped))
	assert.True(t, errors.Is(wrapped, ErrNoResult))
	assert.True(t, IsKind(wrapped, KindAlgorithm))
	assert.False(t, IsKind(wrapped, KindClientInput))

	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("boom")))
}

func TestPageOutOfRangeError_NamesPageAndCount(t *testing.T) {
	err := PageOutOfRangeError(4, 3)
	require.ErrorIs(t, err, ErrPageOutOfRange)
	assert.Contains(t, err.Error(), "4")
	assert.Contains(t, err.Error(), "3 pages")
	assert.Equal(t, http.StatusBadRequest, err.StatusCode())
}

func TestParseMethod(t *testing.T) {
	for _, s := range []string{"one", "two", "three", " TWO "} {
		_, err := ParseMethod(s)
		assert.NoError(t, err, s)
	}
	for _, s := range []string{"", "four", "1"} {
		_, err := ParseMethod(s)
		require.Error(t, err, s)
		assert.ErrorIs(t, err, ErrUnknownMethod)
		assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	}
}

func TestMethodFailureMessage(t *testing.T) {
	assert.Equal(t, "insufficient matches for alignment", MethodDetectDifferences.FailureMessage())
	assert.Equal(t, "insufficient matches for alignment", MethodPhaseCorrelation.FailureMessage())
	assert.Equal(t, "failed to compute difference", MethodPixelPairwise.FailureMessage())
}

func TestComparisonResultImages_ShapesPerMethod(t *testing.T) {
	r := ComparisonResult{Aligned: []byte("a"), Changed: []byte("c")}
	enc := func(b []byte) string { return string(b) }

	assert.Equal(t, map[string]string{"aligned": "a", "changed": "c"}, r.Images(MethodDetectDifferences, enc))
	assert.Equal(t, map[string]string{"changed": "c"}, r.Images(MethodPixelPairwise, enc))
	assert.Equal(t, map[string]string{"aligned": "a"}, r.Images(MethodPhaseCorrelation, enc))
}

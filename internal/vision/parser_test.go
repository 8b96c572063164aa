package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInsightCleanJSON(t *testing.T) {
	insight, err := ParseInsight(`{
		"detected_text": "OPEN 9-5",
		"scene_description": "a shopfront on a rainy street",
		"objects_detected": ["awning", "bicycle", "sign"],
		"additional_context": "appears to be early morning"
	}`)
	require.NoError(t, err)

	assert.Equal(t, "OPEN 9-5", insight.DetectedText)
	assert.Equal(t, "a shopfront on a rainy street", insight.SceneDescription)
	assert.Equal(t, []string{"awning", "bicycle", "sign"}, insight.ObjectsDetected)
	assert.Equal(t, "appears to be early morning", insight.AdditionalContext)
}

func TestParseInsightMarkdownFencedWithProse(t *testing.T) {
	completion := "Here is the analysis you asked for:\n\n```json\n" +
		`{"scene_description": "a dog on a beach", "objects_detected": ["dog"]}` +
		"\n```\n\nLet me know if you need more detail."

	insight, err := ParseInsight(completion)
	require.NoError(t, err)
	assert.Equal(t, "a dog on a beach", insight.SceneDescription)
	assert.Equal(t, []string{"dog"}, insight.ObjectsDetected)
}

func TestParseInsightMissingFieldsDefault(t *testing.T) {
	insight, err := ParseInsight(`{"scene_description": "an empty room"}`)
	require.NoError(t, err)

	assert.Empty(t, insight.DetectedText)
	assert.Nil(t, insight.ObjectsDetected)
	assert.Empty(t, insight.AdditionalContext)
}

func TestParseInsightObjectsAsSingleString(t *testing.T) {
	insight, err := ParseInsight(`{"objects_detected": "table, chair , lamp"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"table", "chair", "lamp"}, insight.ObjectsDetected)
}

func TestParseInsightBracesInsideStrings(t *testing.T) {
	insight, err := ParseInsight(`{"detected_text": "use {curly} braces", "scene_description": "whiteboard"}`)
	require.NoError(t, err)
	assert.Equal(t, "use {curly} braces", insight.DetectedText)
	assert.Equal(t, "whiteboard", insight.SceneDescription)
}

func TestParseInsightNoJSON(t *testing.T) {
	_, err := ParseInsight("I'm unable to analyze this image.")
	assert.ErrorIs(t, err, ErrNoJSONObject)
}

func TestParseInsightMalformedJSON(t *testing.T) {
	_, err := ParseInsight(`{"scene_description": "truncated`)
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, err = ParseInsight(`{"scene_description": oops}`)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

package category

import (
	"context"
	"log/slog"
	"testing"

	"settlement-service/internal/config"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
)

func TestDetectLocal(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected Category
		none     bool
	}{
		{
			name:     "medical keywords",
			text:     "Help fund cancer surgery at the local hospital",
			expected: Medical,
		},
		{
			name:     "education keywords",
			text:     "Tuition support for a university student scholarship",
			expected: Education,
		},
		{
			name:     "case and punctuation ignored",
			text:     "URGENT! Crisis relief after the disaster.",
			expected: Emergency,
		},
		{
			name: "no matches",
			text: "a quick brown fox",
			none: true,
		},
		{
			name: "empty text",
			text: "",
			none: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suggestion := DetectLocal(tt.text)
			if tt.none {
				assert.Nil(t, suggestion)
				return
			}
			assert.NotNil(t, suggestion)
			assert.Equal(t, tt.expected, suggestion.Category)
			assert.NotEmpty(t, suggestion.Keywords)
			assert.Greater(t, suggestion.Confidence, 0.0)
			assert.LessOrEqual(t, suggestion.Confidence, 100.0)
		})
	}
}

func TestDetectLocal_ConfidenceCapped(t *testing.T) {
	suggestion := DetectLocal("surgery treatment hospital cancer medical health")

	assert.NotNil(t, suggestion)
	assert.Equal(t, Medical, suggestion.Category)
	assert.Equal(t, 100.0, suggestion.Confidence)
}

func TestDetector_PrefersRemote(t *testing.T) {
	defer gock.Off()

	gock.New("http://category.example.com").
		Post("/detect").
		Reply(200).
		JSON(map[string]any{
			"category":   "mission",
			"confidence": 66.6,
			"keywords":   []string{"mission"},
		})

	sut := NewDetector(config.Category{RemoteURL: "http://category.example.com/detect"}, slog.Default())

	suggestion := sut.Detect(context.Background(), "mission trip")

	assert.NotNil(t, suggestion)
	assert.Equal(t, Mission, suggestion.Category)
	assert.Equal(t, 66.6, suggestion.Confidence)
	assert.True(t, gock.IsDone())
}

func TestDetector_FallsBackToLocal(t *testing.T) {
	defer gock.Off()

	gock.New("http://category.example.com").
		Post("/detect").
		Reply(500).
		JSON(map[string]string{"error": "internal server error"})

	sut := NewDetector(config.Category{RemoteURL: "http://category.example.com/detect"}, slog.Default())

	suggestion := sut.Detect(context.Background(), "help fund cancer surgery")

	assert.NotNil(t, suggestion)
	assert.Equal(t, Medical, suggestion.Category)
}

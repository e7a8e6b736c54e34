package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"punctuation only", "，。！？…——", ""},
		{"whitespace only", " \t\n　", ""},
		{"ascii sentence", "Hello, World!", "helloworld"},
		{"trailing space", "A ", "a"},
		{"underscore kept", "snake_case  value", "snake_casevalue"},
		{"cjk with punctuation", "人生，就是一场修行。", "人生就是一场修行"},
		{"full width letters", "ＡＢＣ１２３", "abc123"},
		{"mixed case", "GoLang", "golang"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestOf_EquivalentTexts(t *testing.T) {
	assert.Equal(t, Of("Hello, World!"), Of("hello world"))
	assert.Equal(t, Of("A"), Of("A "))
	assert.Equal(t, Of("人生，就是一场修行"), Of("人生 就是 一场修行。"))
	assert.NotEqual(t, Of("A"), Of("B"))
}

func TestOf_Format(t *testing.T) {
	// sha1("helloworld")
	assert.Equal(t, "6adfb183a4a2c94a2f92dab5ade762a47889a5a1", Of("Hello World"))
	assert.Len(t, Of("anything"), 40)
}

func TestOf_EmptyIsAbsent(t *testing.T) {
	assert.Equal(t, "", Of(""))
	assert.Equal(t, "", Of("!!! ..."))
}

func TestOf_Deterministic(t *testing.T) {
	text := "The quick brown fox"
	first := Of(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Of(text))
	}
}

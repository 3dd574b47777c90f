package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"file:///ws/proj/main.go", "/ws/proj/main.go"},
		{"file:///ws/my%20proj", "/ws/my proj"},
		{"/ws/proj/", "/ws/proj"},
		{"jdt://contents/rt.jar", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, PathFromURI(tt.uri))
		})
	}
}

func TestFileURIRoundTrip(t *testing.T) {
	uri := FileURI("/ws/my proj/a.go")
	assert.Equal(t, "file:///ws/my%20proj/a.go", uri)
	assert.Equal(t, "/ws/my proj/a.go", PathFromURI(uri))
}

func TestNonSource(t *testing.T) {
	assert.True(t, KindFolder.NonSource())
	assert.True(t, KindFile.NonSource())
	assert.False(t, KindPackage.NonSource())
	assert.False(t, KindPrimaryType.NonSource())
}

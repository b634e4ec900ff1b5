package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Defaults(t *testing.T) {
	// 1. 空目录 (没有 .zvignore)
	tmpDir := t.TempDir()

	matcher, err := NewMatcher(tmpDir)
	require.NoError(t, err)

	tests := []struct {
		path     string
		shouldIg bool
	}{
		{"temp-12345", true},
		{".zvignore", true},
		{".DS_Store", true},
		{"sub/.DS_Store", true},
		{".zarray", false}, // 元数据 key 不能被忽略
		{"0.0", false},
		{"0/1/2", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.shouldIg, matcher.Matches(tt.path), "Path: %s", tt.path)
		})
	}
}

func TestMatcher_WithUserFile(t *testing.T) {
	tmpDir := t.TempDir()

	ignoreContent := `
# 注释
*.log
scratch
!keep.log
`
	err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte(ignoreContent), 0644)
	require.NoError(t, err)

	matcher, err := NewMatcher(tmpDir)
	require.NoError(t, err)

	assert.True(t, matcher.Matches("debug.log"))
	assert.True(t, matcher.Matches("scratch"))
	assert.False(t, matcher.Matches("keep.log"), "否定规则应该生效")
	assert.True(t, matcher.Matches("temp-abc"), "默认规则依然生效")
	assert.False(t, matcher.Matches("1.1"))
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Matches("anything"))
}

package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hardhat-toolbox-viem", "hardhat-toolbox-viem"},
		{"HHE100: Invalid config", "hhe100-invalid-config"},
		{"@nomicfoundation/hardhat-ethers", "nomicfoundationhardhat-ethers"},
		{"Node.js test runner", "nodejs-test-runner"},
		{"snake_case stays", "snake_case-stays"},
		{"Ünïcödé Title", "ünïcödé-title"},
		{"  two  spaces ", "--two--spaces-"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Make(tt.in))
		})
	}
}

func TestSluggerDeduplicates(t *testing.T) {
	s := NewSlugger()

	assert.Equal(t, "foo", s.Slug("Foo"))
	assert.Equal(t, "foo-1", s.Slug("foo"))
	assert.Equal(t, "foo-2", s.Slug("FOO"))
	assert.Equal(t, "foo-1-1", s.Slug("foo-1"))
	assert.Equal(t, "bar", s.Slug("bar"))

	s.Reset()
	assert.Equal(t, "foo", s.Slug("foo"))
}

package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullHasAppPrefix(t *testing.T) {
	assert.True(t, strings.HasPrefix(Full(), "council/"))
}

func TestStringMarksDirtyBuilds(t *testing.T) {
	clean := Info{Commit: "a3f8c2d1"}
	assert.Equal(t, "council/a3f8c2d1", clean.String())

	dirty := Info{Commit: "a3f8c2d1", Dirty: true}
	assert.Equal(t, "council/a3f8c2d1+dirty", dirty.String())
}

func TestBuildFallsBackToDev(t *testing.T) {
	// Under `go test` there is no VCS stamp, so Build reports "dev".
	info := Build()
	assert.Equal(t, "dev", info.Commit)
}

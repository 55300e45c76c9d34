package objectid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func int64p(n int64) *int64 { return &n }

func TestPreconditions_IsZero(t *testing.T) {
	assert.True(t, Preconditions{}.IsZero())
	assert.False(t, Preconditions{GenerationMatch: int64p(1)}.IsZero())
}

func TestPreconditions_Pairs(t *testing.T) {
	assert.Empty(t, Preconditions{}.Pairs())

	pairs := Preconditions{
		GenerationMatch:        int64p(1),
		GenerationNotMatch:     int64p(2),
		MetagenerationMatch:    int64p(3),
		MetagenerationNotMatch: int64p(4),
	}.Pairs()

	assert.Equal(t, []string{
		"ifGenerationMatch=1",
		"ifGenerationNotMatch=2",
		"ifMetagenerationMatch=3",
		"ifMetagenerationNotMatch=4",
	}, pairs)
}

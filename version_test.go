package unitypack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in        string
		major     int
		minor     int
		patch     int
		build     int
		buildType string
	}{
		{"2020.3.34f1", 2020, 3, 34, 1, "f"},
		{"2019.4.40f1", 2019, 4, 40, 1, "f"},
		{"5.6.7p2", 5, 6, 7, 2, "p"},
		{"2022.1.0b16", 2022, 1, 0, 16, "b"},
		{"2021.3.2", 2021, 3, 2, 0, ""},
		{"0.0.0", 0, 0, 0, 0, ""},
		{"2018.4.36f1c1", 2018, 4, 36, 0, "f"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseVersion(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.major, v.Major)
			assert.Equal(t, tt.minor, v.Minor)
			assert.Equal(t, tt.patch, v.Patch)
			assert.Equal(t, tt.build, v.Build)
			assert.Equal(t, tt.buildType, v.BuildType)
			assert.Equal(t, tt.in, v.String())
		})
	}
}

func TestParseVersionMalformed(t *testing.T) {
	for _, in := range []string{"", "5.x.x", "2020", "2020.3", "abc"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseVersion(in)
			require.ErrorIs(t, err, ErrMalformedVersion)
		})
	}
}

func TestNewVersion(t *testing.T) {
	v := NewVersion(2021, 3, 2)
	assert.Equal(t, "2021.3.2f1", v.String())
	assert.Equal(t, 1, v.Build)
	assert.Equal(t, "f", v.BuildType)

	stripped := NewVersion(0, 0, 0)
	assert.True(t, stripped.IsStripped())
	assert.Equal(t, "0.0.0", stripped.String())
	assert.Empty(t, stripped.BuildType)
}

func TestVersionOrdering(t *testing.T) {
	a := NewVersion(2020, 3, 34)
	b := NewVersion(2020, 3, 35)
	c := NewVersion(2021, 1, 0)

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, c.Compare(b))
	assert.Equal(t, 0, a.Compare(a))

	t.Run("build does not take part in equality", func(t *testing.T) {
		x, err := ParseVersion("2020.3.34f1")
		require.NoError(t, err)
		y, err := ParseVersion("2020.3.34p7")
		require.NoError(t, err)
		assert.True(t, x.Equal(y))
	})

	t.Run("prefix comparisons", func(t *testing.T) {
		assert.Equal(t, 0, a.CompareMajor(2020))
		assert.Equal(t, 0, a.CompareMinor(2020, 3))
		assert.Equal(t, 1, a.CompareMinor(2020, 2))
		assert.Equal(t, -1, a.CompareTriple(2020, 3, 35))
	})
}

func TestVersionBounds(t *testing.T) {
	v := NewVersion(2019, 4, 1)

	assert.True(t, v.AtLeast(MajorMinor(2019, 4)))
	assert.True(t, v.AtLeast(Major(2019)))
	assert.False(t, v.AtLeast(Major(2020)))
	assert.True(t, v.Before(Triple(2019, 4, 2)))
	assert.True(t, v.AtLeast(Exactly(v)))

	t.Run("half-open ranges", func(t *testing.T) {
		lo, hi := Major(2020), Triple(2020, 3, 34)
		assert.True(t, NewVersion(2020, 1, 0).InRange(lo, hi))
		assert.True(t, NewVersion(2020, 3, 33).InRange(lo, hi))
		assert.False(t, NewVersion(2020, 3, 34).InRange(lo, hi))
		assert.False(t, NewVersion(2019, 4, 40).InRange(lo, hi))
	})

	t.Run("major bound ignores minor and patch", func(t *testing.T) {
		assert.Equal(t, 0, NewVersion(2020, 9, 9).CompareBound(Major(2020)))
	})

	assert.Equal(t, "2020", Major(2020).String())
	assert.Equal(t, "2019.4", MajorMinor(2019, 4).String())
	assert.Equal(t, "2020.3.34", Triple(2020, 3, 34).String())
}

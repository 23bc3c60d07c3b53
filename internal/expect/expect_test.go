package expect_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/alertbench/api/schemas"
	"github.com/xkilldash9x/alertbench/internal/expect"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		expected  []string
		actual    []string
		wantIndex int // -1 means equal
		wantExp   string
		wantAct   string
	}{
		{"equal", []string{"black", "pink", "color: pink;"}, []string{"black", "pink", "color: pink;"}, -1, "", ""},
		{"both empty", nil, []string{}, -1, "", ""},
		{"value differs", []string{"a", "b"}, []string{"a", "c"}, 1, `"b"`, `"c"`},
		{"actual shorter", []string{"a", "b"}, []string{"a"}, 1, `"b"`, "<absent>"},
		{"actual longer", []string{"a"}, []string{"a", "b"}, 1, "<absent>", `"b"`},
		{"empty expectation with output", nil, []string{"x"}, 0, "<absent>", `"x"`},
		{"order matters", []string{"1", "2"}, []string{"2", "1"}, 0, `"1"`, `"2"`},
		{"no whitespace normalization", []string{"a "}, []string{"a"}, 0, `"a "`, `"a"`},
		{"no dedup", []string{"a", "a"}, []string{"a"}, 1, `"a"`, "<absent>"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := expect.Compare(tc.expected, tc.actual)
			if tc.wantIndex < 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var mm *expect.Mismatch
			require.True(t, errors.As(err, &mm))
			assert.Equal(t, tc.wantIndex, mm.Index)
			assert.Equal(t, tc.wantExp, mm.ExpectedAt())
			assert.Equal(t, tc.wantAct, mm.ActualAt())
			assert.NotEmpty(t, mm.Diff)
			assert.Contains(t, err.Error(), fmt.Sprintf("index %d", tc.wantIndex))
		})
	}
}

func TestCompareDoesNotAliasInputs(t *testing.T) {
	t.Parallel()
	actual := []string{"a"}
	err := expect.Compare([]string{"b"}, actual)
	var mm *expect.Mismatch
	require.ErrorAs(t, err, &mm)
	actual[0] = "mutated"
	assert.Equal(t, []string{"a"}, mm.Actual)
}

// recordingT captures Errorf calls.
type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}
func (r *recordingT) Helper() {}

func TestAssertAlerts(t *testing.T) {
	t.Parallel()
	rt := &recordingT{}
	assert.True(t, expect.AssertAlerts(rt, []string{"1"}, []string{"1"}))
	assert.Empty(t, rt.errors)

	assert.False(t, expect.AssertAlerts(rt, []string{"1"}, []string{"2"}))
	require.Len(t, rt.errors, 1)
	assert.Contains(t, rt.errors[0], `expected "1", got "2"`)
}

func TestResolve(t *testing.T) {
	t.Parallel()
	e := expect.Alerts("default").
		For(schemas.IE, "ie-family").
		For(schemas.IE8, "ie8").
		NYI(schemas.FF60)

	testCases := []struct {
		tag     schemas.Tag
		want    []string
		wantNYI bool
	}{
		{schemas.IE8, []string{"ie8"}, false},
		{schemas.IE11, []string{"ie-family"}, false},
		{schemas.CHROME, []string{"default"}, false},
		{schemas.FF60, []string{"default"}, true},
		{schemas.FF68, []string{"default"}, false},
	}
	for _, tc := range testCases {
		got, nyi := e.Resolve(tc.tag)
		assert.Equal(t, tc.want, got, string(tc.tag))
		assert.Equal(t, tc.wantNYI, nyi, string(tc.tag))
	}

	// A version override never applies to its siblings; only a family
	// override does.
	versionOnly := expect.Alerts("default").For(schemas.FF60, "ff60")
	got, _ := versionOnly.Resolve(schemas.FF68)
	assert.Equal(t, []string{"default"}, got)
	familyOnly := expect.Alerts("default").For(schemas.FF, "ff")
	for _, tag := range []schemas.Tag{schemas.FF60, schemas.FF68} {
		got, _ = familyOnly.Resolve(tag)
		assert.Equal(t, []string{"ff"}, got, string(tag))
	}

	familyNYI := expect.Alerts().NYI(schemas.IE)
	_, nyi := familyNYI.Resolve(schemas.IE8)
	assert.True(t, nyi, "a family marker covers every version")

	var nilExp *expect.Expectation
	got, nyi = nilExp.Resolve(schemas.CHROME)
	assert.Nil(t, got)
	assert.False(t, nyi)
}

func TestJudge(t *testing.T) {
	t.Parallel()
	e := expect.Alerts("a").NYI(schemas.IE8)

	v := e.Judge(schemas.CHROME, []string{"a"})
	assert.Equal(t, expect.StatusPassed, v.Status)
	assert.Nil(t, v.Mismatch)

	v = e.Judge(schemas.CHROME, []string{"b"})
	assert.Equal(t, expect.StatusFailed, v.Status)
	require.NotNil(t, v.Mismatch)
	assert.True(t, v.Status.IsFailure())

	v = e.Judge(schemas.IE8, []string{"b"})
	assert.Equal(t, expect.StatusKnownDivergence, v.Status)
	assert.False(t, v.Status.IsFailure())

	v = e.Judge(schemas.IE8, []string{"a"})
	assert.Equal(t, expect.StatusUnexpectedPass, v.Status)
	assert.True(t, v.Status.IsFailure())
}

func TestExpectationYAML(t *testing.T) {
	t.Parallel()

	src := `
default: [black, pink, "color: pink;"]
IE8: [black, pink, "COLOR: pink"]
ie: []
nyi: [FF60]
`
	var e expect.Expectation
	require.NoError(t, yaml.Unmarshal([]byte(src), &e))
	assert.Equal(t, []string{"black", "pink", "color: pink;"}, e.Default)
	assert.Equal(t, []string{"black", "pink", "COLOR: pink"}, e.Overrides[schemas.IE8])
	assert.Equal(t, []string{}, e.Overrides[schemas.IE])
	assert.True(t, e.NotYetImplemented[schemas.FF60])

	var short expect.Expectation
	require.NoError(t, yaml.Unmarshal([]byte(`[one, two]`), &short))
	assert.Equal(t, []string{"one", "two"}, short.Default)

	var bad expect.Expectation
	assert.Error(t, yaml.Unmarshal([]byte(`{OPERA: [x]}`), &bad))

	out, err := yaml.Marshal(e)
	require.NoError(t, err)
	var roundTrip expect.Expectation
	require.NoError(t, yaml.Unmarshal(out, &roundTrip))
	assert.Equal(t, e.Default, roundTrip.Default)
	assert.True(t, roundTrip.NotYetImplemented[schemas.FF60])
}

func TestExpectationString(t *testing.T) {
	t.Parallel()
	s := expect.Alerts("x").For(schemas.IE8, "y").NYI(schemas.FF).String()
	assert.Equal(t, `DEFAULT=["x"] IE8=["y"] NYI=FF`, s)
}
